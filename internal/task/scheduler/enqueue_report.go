package scheduler

import (
	"errors"
	"time"

	"cronex/internal/task/engine"
	logx "cronex/pkg/logx"
)

// enqueueWarnEvery bounds warn lines per schedule while the engine keeps
// rejecting its triggers.
const enqueueWarnEvery = 5 * time.Second

type enqueueWarn struct {
	last       time.Time
	suppressed int
}

// reportEnqueueError logs a trigger the engine refused. Overlap skips are
// normal operation and stay at debug.
func (s *Service) reportEnqueueError(id, name string, err error) {
	if errors.Is(err, engine.ErrOverlapSkip) {
		s.log.Debug("schedule trigger skipped", logx.String("schedule", name), logx.String("id", id))
		return
	}

	now := time.Now()
	s.enqMu.Lock()
	w := s.enqWarn[id]
	if w == nil {
		w = &enqueueWarn{}
		s.enqWarn[id] = w
	}
	if !w.last.IsZero() && now.Sub(w.last) < enqueueWarnEvery {
		w.suppressed++
		s.enqMu.Unlock()
		return
	}
	suppressed := w.suppressed
	w.last, w.suppressed = now, 0
	s.enqMu.Unlock()

	s.log.Warn("schedule failed to enqueue task",
		logx.String("schedule", name),
		logx.String("id", id),
		logx.Int("suppressed", suppressed),
		logx.Err(err),
	)
}

func (s *Service) forgetEnqueueWarn(id string) {
	s.enqMu.Lock()
	delete(s.enqWarn, id)
	s.enqMu.Unlock()
}
