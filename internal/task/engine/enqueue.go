package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"cronex/internal/eventbus"
	logx "cronex/pkg/logx"
)

// Enqueue hands t to the worker pool without blocking. A full queue drops
// the task with ErrQueueFull; a skip-policy task whose state is busy is
// refused with ErrOverlapSkip.
func (s *Service) Enqueue(t Task) error {
	if t.Run == nil {
		return fmt.Errorf("task Run is nil")
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("task Name is required")
	}
	if strings.TrimSpace(t.ID) == "" {
		t.ID = xid.New().String()
	}
	now := time.Now()

	// Held through the send so a retiring pool never receives work after
	// its final drain.
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.pool
	switch {
	case !s.cfg.Enabled:
		return ErrDisabled
	case p == nil:
		return ErrStopped
	case p.stopping:
		return ErrStopping
	}

	qt := queuedTask{task: t, enqueuedAt: now, timeout: t.Timeout, opt: t.Opt.withDefaults(), state: t.State}
	if qt.timeout <= 0 {
		qt.timeout = s.cfg.DefaultTimeout
	}
	if qt.state == nil {
		qt.state = s.stateFor(t.Group, t.Name)
	}
	if qt.opt.Overlap == OverlapSkipIfRunning {
		if !qt.state.tryAcquire() {
			s.skipped.Inc()
			eventbus.Publish(s.bus, eventbus.TaskSkipped, TaskEvent{ID: t.ID, Name: t.Name, Started: now, Error: "overlap_skip"})
			s.log.Debug("task skipped due to overlap", logx.String("task", t.Name), logx.String("id", t.ID))
			return ErrOverlapSkip
		}
		qt.track = true
	}

	select {
	case p.queue <- qt:
		return nil
	default:
		s.drop(dropQueueFull, qt, now, 0)
		return ErrQueueFull
	}
}

func (s *Service) stateFor(group, name string) *RunState {
	key := stateKey(group, name)
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	st, ok := s.states[key]
	if !ok {
		st = &RunState{}
		s.states[key] = st
	}
	return st
}
