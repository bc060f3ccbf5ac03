package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpreadOffset(t *testing.T) {
	t.Parallel()

	// Stable per key and bounded by min(every, 30s).
	a := spreadOffset(time.Hour, "interval:1/fetch")
	assert.Equal(t, a, spreadOffset(time.Hour, "interval:1/fetch"))
	assert.Less(t, a, maxStartupSpread)
	assert.Zero(t, a%time.Second)

	assert.Less(t, spreadOffset(10*time.Second, "x"), 10*time.Second)
	assert.Zero(t, spreadOffset(time.Second, "x"))
	assert.Zero(t, spreadOffset(500*time.Millisecond, "x"))
}

func TestWithStartupSpreadDelaysFirstRunOnly(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	var key string
	var off time.Duration
	for i := 0; off == 0; i++ {
		key = string(rune('a' + i))
		off = spreadOffset(time.Minute, key)
	}

	sched, got := withStartupSpread(time.Minute, now, key)
	assert.Equal(t, off, got)

	first := sched.Next(now)
	assert.Equal(t, now.Add(time.Minute+off), first)
	assert.Equal(t, first.Add(time.Minute), sched.Next(first))
}
