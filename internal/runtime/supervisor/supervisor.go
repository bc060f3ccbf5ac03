// Package supervisor runs named goroutines under one cancelable context.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/atomic"

	logx "cronex/pkg/logx"
)

const (
	minRestartBackoff = 250 * time.Millisecond
	maxRestartBackoff = 30 * time.Second
	// A run that lasted this long resets the backoff.
	healthyRun = 30 * time.Second
)

// Supervisor owns a context and the goroutines started under it. A panic
// becomes an error; with WithCancelOnError the first error cancels the rest.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    logx.Logger

	cancelOnErr bool

	started  atomic.Uint64
	active   atomic.Int64
	firstErr atomic.Error

	wg       sync.WaitGroup
	waitOnce sync.Once
	done     chan struct{}
}

type Option func(*Supervisor)

// Counters is a point-in-time view of the goroutines started so far.
type Counters struct {
	Active  int64  `json:"active"`
	Started uint64 `json:"started"`
}

func WithLogger(log logx.Logger) Option {
	return func(s *Supervisor) { s.log = log }
}

// WithCancelOnError cancels the shared context on the first goroutine error.
func WithCancelOnError(enabled bool) Option {
	return func(s *Supervisor) { s.cancelOnErr = enabled }
}

func New(parent context.Context, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	s := &Supervisor{ctx: ctx, cancel: cancel, log: logx.Nop(), done: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

func (s *Supervisor) Context() context.Context { return s.ctx }

// Cancel cancels the context and returns without waiting.
func (s *Supervisor) Cancel() { s.cancel() }

// Err returns the first recorded goroutine error.
func (s *Supervisor) Err() error { return s.firstErr.Load() }

func (s *Supervisor) Counters() Counters {
	if s == nil {
		return Counters{}
	}
	return Counters{Active: s.active.Load(), Started: s.started.Load()}
}

// Go runs fn in a goroutine. context.Canceled is not an error.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.started.Inc()
	s.active.Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.active.Dec()

		s.log.Debug("goroutine started", logx.String("name", name))
		err := s.guard(name, fn)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.fail(fmt.Errorf("%s: %w", name, err))
		}
		s.log.Debug("goroutine stopped", logx.String("name", name))
	}()
}

// Go0 is Go for functions that cannot fail.
func (s *Supervisor) Go0(name string, fn func(ctx context.Context)) {
	if fn == nil {
		return
	}
	s.Go(name, func(ctx context.Context) error {
		fn(ctx)
		return nil
	})
}

// GoRestart reruns fn after an error or panic, backing off from 250ms up to
// 30s with jitter, until fn returns nil or the context ends. Restart errors
// are recorded but never cancel the supervisor.
func (s *Supervisor) GoRestart(name string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	s.Go0(name+".restart", func(ctx context.Context) {
		backoff := minRestartBackoff
		for ctx.Err() == nil {
			began := time.Now()
			err := s.guard(name, fn)
			if err == nil || ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			s.firstErr.CompareAndSwap(nil, fmt.Errorf("%s: %w", name, err))

			if time.Since(began) >= healthyRun {
				backoff = minRestartBackoff
			}
			wait := jitter(backoff)
			s.log.Warn("goroutine restarting", logx.String("name", name), logx.Duration("backoff", wait), logx.Err(err))

			t := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			backoff = min(backoff*2, maxRestartBackoff)
		}
	})
}

// Wait blocks until every goroutine has returned or ctx ends.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.waitOnce.Do(func() {
		go func() {
			s.wg.Wait()
			close(s.done)
		}()
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return s.Err()
	}
}

// guard calls fn, turning a panic into an error.
func (s *Supervisor) guard(name string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("goroutine panicked", logx.String("name", name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(s.ctx)
}

func (s *Supervisor) fail(err error) {
	s.firstErr.CompareAndSwap(nil, err)
	if s.cancelOnErr {
		s.cancel()
	}
}

// jitter adds up to 20% to d.
func jitter(d time.Duration) time.Duration {
	if j := int64(d) / 5; j > 0 {
		d += time.Duration(time.Now().UnixNano() % (j + 1))
	}
	return d
}
