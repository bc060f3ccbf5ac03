package engine

import (
	"strings"

	"golang.org/x/sync/semaphore"
)

// slots is a weighted semaphore sized for one ConcurrencyLimit.
type slots struct {
	limit int
	sem   *semaphore.Weighted
}

// tryRun takes one execution slot. A changed limit swaps in a fresh
// semaphore; runs holding the old one release into it.
func (s *RunState) tryRun(limit int) (release func(), ok bool) {
	if s == nil || limit <= 0 {
		return func() {}, true
	}
	s.mu.Lock()
	if s.slots == nil || s.slots.limit != limit {
		s.slots = &slots{limit: limit, sem: semaphore.NewWeighted(int64(limit))}
	}
	sem := s.slots.sem
	s.mu.Unlock()

	if !sem.TryAcquire(1) {
		return nil, false
	}
	return func() { sem.Release(1) }, true
}

func stateKey(group, name string) string {
	if k := strings.TrimSpace(group); k != "" {
		return k
	}
	if k := strings.TrimSpace(name); k != "" {
		return k
	}
	return "default"
}
