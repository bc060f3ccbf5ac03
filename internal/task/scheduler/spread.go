package scheduler

import (
	"hash/fnv"
	"time"

	"github.com/robfig/cron/v3"
)

const maxStartupSpread = 30 * time.Second

// spreadSchedule delays the first firing of an interval rule, then follows
// the base schedule.
type spreadSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s spreadSchedule) Next(t time.Time) time.Time {
	if t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// withStartupSpread offsets the first firing by a whole-second amount in
// [0, min(every, 30s)) derived from key, so interval rules registered together
// do not all land on the same tick and the offset is stable across restarts.
func withStartupSpread(every time.Duration, now time.Time, key string) (cron.Schedule, time.Duration) {
	base := cron.Every(every)
	offset := spreadOffset(every, key)
	if offset == 0 {
		return base, 0
	}
	return spreadSchedule{base: base, first: base.Next(now).Add(offset)}, offset
}

func spreadOffset(every time.Duration, key string) time.Duration {
	limit := min(every, maxStartupSpread) / time.Second
	if limit <= 1 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return time.Duration(h.Sum64()%uint64(limit)) * time.Second
}
