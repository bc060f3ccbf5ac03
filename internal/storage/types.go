package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON Lines files next to Path
//   - "sqlite": SQLite database file at Path
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// RunRecord is one fetch invocation.
type RunRecord struct {
	At         time.Time `json:"at"`
	Label      string    `json:"label"`
	OK         bool      `json:"ok"`
	Stage      string    `json:"stage,omitempty"`
	Count      int       `json:"count"`
	Output     string    `json:"output"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// UserRecord is one registration.
type UserRecord struct {
	ID           string    `json:"id"`
	Seq          int       `json:"seq"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Store is the persistence API used by the runtime.
type Store interface {
	AppendRun(ctx context.Context, r RunRecord) error
	AppendUser(ctx context.Context, u UserRecord) error
	Close() error
}
