package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Config controls the task execution engine.
//
// The scheduler only triggers; execution settings live here.
type Config struct {
	Enabled   bool
	Workers   int
	QueueSize int

	// DefaultTimeout is used when Task.Timeout is 0.
	DefaultTimeout time.Duration

	// MaxQueueDelay drops tasks that have been queued longer than this duration.
	// 0 disables stale-queue dropping.
	MaxQueueDelay time.Duration

	HistorySize int
}

const (
	defaultWorkers     = 8
	defaultQueueSize   = 256
	defaultHistorySize = 200
)

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.HistorySize <= 0 {
		c.HistorySize = defaultHistorySize
	}
	return c
}

// OverlapPolicy decides what happens when a schedule fires while a previous
// invocation of the same schedule is still queued or running.
type OverlapPolicy int

const (
	// OverlapAllow runs every firing, even if earlier ones are still in flight.
	// If a task consistently outlasts its interval, in-flight work accumulates.
	OverlapAllow OverlapPolicy = iota
	// OverlapSkipIfRunning drops a firing while a previous one is queued or running.
	OverlapSkipIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case OverlapAllow:
		return "allow"
	case OverlapSkipIfRunning:
		return "skip"
	default:
		return fmt.Sprintf("overlap(%d)", int(p))
	}
}

// ParseOverlap maps a config value to a policy. Empty means OverlapAllow.
func ParseOverlap(s string) (OverlapPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "allow":
		return OverlapAllow, nil
	case "skip", "skip_if_running":
		return OverlapSkipIfRunning, nil
	default:
		return OverlapAllow, fmt.Errorf("unknown overlap policy %q (use allow or skip)", s)
	}
}

type TaskOptions struct {
	Overlap OverlapPolicy

	// ConcurrencyLimit bounds concurrent executions sharing one RunState.
	// 0 means unbounded.
	ConcurrencyLimit int
}

func (o TaskOptions) withDefaults() TaskOptions {
	if o.Overlap != OverlapAllow && o.Overlap != OverlapSkipIfRunning {
		o.Overlap = OverlapAllow
	}
	if o.ConcurrencyLimit < 0 {
		o.ConcurrencyLimit = 0
	}
	return o
}

// RunState tracks whether a task is already queued or in flight.
// SkipIfRunning treats "queued" the same as "running" so a fast schedule
// cannot pile work into the queue.
//
// A RunState also carries the ConcurrencyLimit slots, so two registrations
// with their own states never share a cap.
type RunState struct {
	mu       sync.Mutex
	inflight int
	slots    *slots
}

func (s *RunState) tryAcquire() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight > 0 {
		return false
	}
	s.inflight++
	return true
}

func (s *RunState) release() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.inflight > 0 {
		s.inflight--
	}
	s.mu.Unlock()
}

type HistoryItem struct {
	ID         string
	Name       string
	Started    time.Time
	QueueDelay time.Duration
	Duration   time.Duration
	Error      string
}

// TaskEvent is emitted on the event bus for task lifecycle events.
type TaskEvent struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Started    time.Time     `json:"started"`
	QueueDelay time.Duration `json:"queue_delay"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
}

// Task is a unit of work executed by the engine.
//
// State carries the overlap and concurrency bookkeeping for one schedule.
// When it is nil the engine keeps a state per Group (or per Name).
type Task struct {
	ID      string
	Name    string
	Group   string
	Timeout time.Duration
	Run     func(ctx context.Context) error
	Opt     TaskOptions
	State   *RunState
}

// Snapshot is a lightweight view for diagnostics.
type Snapshot struct {
	Enabled  bool
	Workers  int
	QueueLen int
	QueueCap int
	InFlight int

	Completed        uint64
	Failed           uint64
	Skipped          uint64
	Dropped          uint64
	DroppedQueueFull uint64
	DroppedStale     uint64

	DefaultTimeout time.Duration
	MaxQueueDelay  time.Duration

	History []HistoryItem
}
