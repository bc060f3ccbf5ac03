package engine

import (
	"time"

	"go.uber.org/atomic"

	"cronex/internal/eventbus"
	logx "cronex/pkg/logx"
)

// Drop warnings are throttled; the counters and bus events are not.
const warnThrottleEvery = 5 * time.Second

type dropReason string

const (
	dropQueueFull dropReason = "queue_full"
	dropStale     dropReason = "stale_queue_delay"
	dropStopped   dropReason = "engine_stopped"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	cfg := s.cfg
	var ql, qc int
	if s.pool != nil {
		ql, qc = len(s.pool.queue), cap(s.pool.queue)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	h := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()

	return Snapshot{
		Enabled:          cfg.Enabled,
		Workers:          cfg.Workers,
		QueueLen:         ql,
		QueueCap:         qc,
		InFlight:         int(s.inFlight.Load()),
		Completed:        s.completed.Load(),
		Failed:           s.failed.Load(),
		Skipped:          s.skipped.Load(),
		Dropped:          s.dropped.Load(),
		DroppedQueueFull: s.droppedQueueFull.Load(),
		DroppedStale:     s.droppedStale.Load(),
		DefaultTimeout:   cfg.DefaultTimeout,
		MaxQueueDelay:    cfg.MaxQueueDelay,
		History:          h,
	}
}

func (s *Service) recordHistory(item HistoryItem) {
	s.mu.Lock()
	limit := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	if over := len(s.history) - limit; over > 0 {
		s.history = s.history[over:]
	}
}

// drop discards qt, frees its overlap slot, counts it and tells the bus.
func (s *Service) drop(reason dropReason, qt queuedTask, now time.Time, delay time.Duration) {
	s.releaseTracked(qt)
	s.dropped.Inc()
	eventbus.Publish(s.bus, eventbus.TaskDropped, TaskEvent{ID: qt.task.ID, Name: qt.task.Name, Started: now, QueueDelay: delay, Error: string(reason)})

	var total uint64
	var last *atomic.Int64
	switch reason {
	case dropQueueFull:
		total, last = s.droppedQueueFull.Inc(), &s.lastQueueFullWarnAt
	case dropStale:
		total, last = s.droppedStale.Inc(), &s.lastStaleWarnAt
	default:
		return
	}
	if shouldWarn(last, now) {
		s.log.Warn("task dropped",
			logx.String("reason", string(reason)),
			logx.String("task", qt.task.Name),
			logx.String("id", qt.task.ID),
			logx.Duration("queue_delay", delay),
			logx.Uint64("total", total),
		)
	}
}

func shouldWarn(last *atomic.Int64, now time.Time) bool {
	prev := last.Load()
	n := now.UnixNano()
	if prev != 0 && n-prev < int64(warnThrottleEvery) {
		return false
	}
	return last.CompareAndSwap(prev, n)
}
