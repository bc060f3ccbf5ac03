package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cronex/internal/eventbus"
	"cronex/internal/task/engine"
	logx "cronex/pkg/logx"
)

// Config controls the scheduler (trigger) service.
type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "Europe/Berlin"; empty means Local

	// StartupSpread delays the first firing of interval schedules by a stable
	// fraction of the interval to avoid a burst right after start.
	StartupSpread bool
}

// Job is the callback a schedule runs on every firing.
type Job func(ctx context.Context) error

// Re-export execution types from engine.
type OverlapPolicy = engine.OverlapPolicy

type TaskOptions = engine.TaskOptions

type HistoryItem = engine.HistoryItem

const (
	OverlapAllow         = engine.OverlapAllow
	OverlapSkipIfRunning = engine.OverlapSkipIfRunning
)

type scheduleDef struct {
	id            string
	name          string
	spec          string // cron spec or @every
	every         time.Duration
	timeout       time.Duration
	job           Job
	entryID       cron.EntryID
	startupSpread time.Duration
	opt           TaskOptions
	state         *engine.RunState
}

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine *engine.Service

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef
	seq    uint64

	enqMu   sync.Mutex
	enqWarn map[string]*enqueueWarn
}

// Handle identifies one registration. Cancel only affects that registration,
// even if the name was later reused.
type Handle struct {
	ID   string
	Name string

	svc *Service
}

// Cancel stops future firings of this registration. In-flight invocations run
// to completion. It reports whether the registration was still active.
func (h Handle) Cancel() bool {
	if h.svc == nil || h.ID == "" {
		return false
	}
	return h.svc.removeByID(h.ID)
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Overlap string
	Next    time.Time
	Prev    time.Time
}

type Snapshot struct {
	Enabled  bool
	Timezone string

	Schedules []ScheduleInfo
	Engine    engine.Snapshot
}
