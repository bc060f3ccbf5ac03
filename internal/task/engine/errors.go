package engine

import (
	"errors"
	"fmt"
)

var (
	ErrDisabled    = errors.New("task engine disabled")
	ErrStopped     = errors.New("task engine stopped")
	ErrStopping    = errors.New("task engine stopping")
	ErrQueueFull   = errors.New("task engine queue full")
	ErrOverlapSkip = errors.New("task skipped due to overlap policy")
)

// PanicError is the error recorded when a task panics.
type PanicError struct {
	Task  string
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task %s panicked: %v", e.Task, e.Value) }
