package engine

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"cronex/internal/eventbus"
	logx "cronex/pkg/logx"
)

// slowTaskThreshold promotes task.completed from debug to info.
const slowTaskThreshold = 750 * time.Millisecond

const cappedRequeueDelay = 10 * time.Millisecond

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask) {
	for {
		// A closed stopCh wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case t, ok := <-queue:
			if !ok {
				return
			}

			release, ok := t.state.tryRun(t.opt.ConcurrencyLimit)
			if !ok {
				// At capacity: put it back and pick up other work.
				if !s.requeue(ctx, stopCh, queue, t) {
					return
				}
				continue
			}

			s.inFlight.Inc()
			s.execOne(ctx, t)
			s.inFlight.Dec()
			release()
		}
	}
}

// requeue returns a capped task to the queue and pauses briefly so a queue
// holding only capped work does not spin. It reports false when the worker
// should exit.
func (s *Service) requeue(ctx context.Context, stopCh <-chan struct{}, queue chan queuedTask, t queuedTask) bool {
	select {
	case <-ctx.Done():
		s.drop(dropStopped, t, time.Now(), 0)
		return false
	case <-stopCh:
		s.drop(dropStopped, t, time.Now(), 0)
		return false
	case queue <- t:
	default:
		s.drop(dropQueueFull, t, time.Now(), 0)
	}
	runtime.Gosched()
	select {
	case <-ctx.Done():
		return false
	case <-stopCh:
		return false
	case <-time.After(cappedRequeueDelay):
		return true
	}
}

func (s *Service) releaseTracked(t queuedTask) {
	if t.track && t.state != nil {
		t.state.release()
	}
}

func (s *Service) execOne(ctx context.Context, qt queuedTask) {
	start := time.Now()
	queueDelay := time.Duration(0)
	if !qt.enqueuedAt.IsZero() {
		queueDelay = max(start.Sub(qt.enqueuedAt), 0)
	}

	s.mu.Lock()
	maxQueueDelay := s.cfg.MaxQueueDelay
	s.mu.Unlock()

	if maxQueueDelay > 0 && queueDelay > maxQueueDelay {
		s.drop(dropStale, qt, start, queueDelay)
		s.recordHistory(HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Error: "stale_queue_delay"})
		return
	}
	defer s.releaseTracked(qt)

	s.log.Debug("task.started", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Duration("queue_delay", queueDelay))
	eventbus.Publish(s.bus, eventbus.TaskStarted, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay})

	runCtx := ctx
	var cancel context.CancelFunc
	if qt.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, qt.timeout)
	}
	err := s.runGuarded(runCtx, qt.task)
	if cancel != nil {
		cancel()
	}

	dur := time.Since(start)
	item := HistoryItem{ID: qt.task.ID, Name: qt.task.Name, Started: start, Duration: dur, QueueDelay: queueDelay}
	if err != nil {
		item.Error = err.Error()
		s.failed.Inc()
		s.log.Warn("task.failed", logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Err(err), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur))
		eventbus.Publish(s.bus, eventbus.TaskFailed, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur, Error: item.Error})
	} else {
		s.completed.Inc()
		fields := []logx.Field{logx.String("task", qt.task.Name), logx.String("id", qt.task.ID), logx.Duration("queue_delay", queueDelay), logx.Duration("dur", dur)}
		if dur >= slowTaskThreshold {
			s.log.Info("task.completed", fields...)
		} else {
			s.log.Debug("task.completed", fields...)
		}
		eventbus.Publish(s.bus, eventbus.TaskFinished, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: start, QueueDelay: queueDelay, Duration: dur})
	}
	s.recordHistory(item)
}

// runGuarded converts a task panic into an error so one bad callback can't
// kill a worker or the process.
func (s *Service) runGuarded(ctx context.Context, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Task: t.Name, Value: r}
			s.log.Error("task.panic", logx.String("task", t.Name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
		}
	}()
	return t.Run(ctx)
}
