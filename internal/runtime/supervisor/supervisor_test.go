package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestPanicBecomesErrorAndCancels(t *testing.T) {
	t.Parallel()
	s := New(context.Background(), WithCancelOnError(true))

	s.Go0("boom", func(context.Context) { panic("kaput") })
	s.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	err := s.Wait(waitCtx(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom: panic: kaput")
	assert.Equal(t, Counters{Active: 0, Started: 2}, s.Counters())
}

func TestCanceledIsNotAnError(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	s.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	s.Cancel()
	require.NoError(t, s.Wait(waitCtx(t)))
}

func TestFirstErrorWins(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	first := errors.New("first")
	s.Go("a", func(context.Context) error { return first })
	require.Eventually(t, func() bool { return s.Err() != nil }, time.Second, 5*time.Millisecond)
	s.Go("b", func(context.Context) error { return errors.New("second") })

	assert.ErrorIs(t, s.Wait(waitCtx(t)), first)
	// Without WithCancelOnError the context survives errors.
	assert.NoError(t, s.Context().Err())
}

func TestGoRestartRetriesUntilSuccess(t *testing.T) {
	t.Parallel()
	s := New(context.Background())

	var calls atomic.Int32
	s.GoRestart("flaky", func(context.Context) error {
		switch calls.Inc() {
		case 1:
			return errors.New("transient")
		case 2:
			panic("worse")
		default:
			return nil
		}
	})

	err := s.Wait(waitCtx(t))
	assert.EqualError(t, err, "flaky: transient")
	assert.Equal(t, int32(3), calls.Load())
	assert.NoError(t, s.Context().Err())
}

func TestGoRestartStopsOnCancel(t *testing.T) {
	t.Parallel()
	s := New(context.Background())
	var calls atomic.Int32
	s.GoRestart("failing", func(context.Context) error {
		calls.Inc()
		return errors.New("always")
	})
	require.Eventually(t, func() bool { return calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	s.Cancel()
	require.Error(t, s.Wait(waitCtx(t)))
	n := calls.Load()
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, n, calls.Load())
}

func TestJitterBounds(t *testing.T) {
	t.Parallel()
	for i := 0; i < 50; i++ {
		d := jitter(time.Second)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}
