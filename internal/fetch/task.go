package fetch

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"cronex/internal/eventbus"
	logx "cronex/pkg/logx"
)

// Task is the scheduled callback. One Task may be shared by any number of
// schedules; the label tells invocations apart.
type Task struct {
	mu     sync.Mutex
	cfg    Config
	client *Client
	hc     *http.Client

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time
}

type Option func(*Task)

// WithHTTPClient replaces the default transport (tests use httptest clients).
func WithHTTPClient(hc *http.Client) Option {
	return func(t *Task) { t.hc = hc }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Task) { t.now = now }
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, opts ...Option) *Task {
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Task{log: log, bus: bus, now: time.Now}
	for _, o := range opts {
		if o != nil {
			o(t)
		}
	}
	// One transport for the Task's lifetime; Apply only swaps settings.
	if t.hc == nil {
		t.hc = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	t.Apply(cfg)
	return t
}

// Apply swaps settings for subsequent invocations. In-flight ones keep the
// settings they started with.
func (t *Task) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	t.mu.Lock()
	t.cfg = cfg
	t.client = NewClient(cfg, t.hc)
	t.mu.Unlock()
}

func (t *Task) Config() Config {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Job adapts Run to a scheduler callback. Failures are reported by Run, so
// the returned error is always nil.
func (t *Task) Job(label string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		t.Run(ctx, label)
		return nil
	}
}

// Run performs one invocation. On any failure the artifact is left untouched.
func (t *Task) Run(ctx context.Context, label string) Report {
	t.mu.Lock()
	cfg := t.cfg
	client := t.client
	t.mu.Unlock()

	triggered := t.now()
	log := t.log.With(logx.String("label", label))
	log.Info("triggered", logx.Time("at", triggered))

	rep := Report{Label: label, Triggered: triggered, Output: cfg.Output}

	reqCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	records, err := client.Records(reqCtx, cfg.URL)
	cancel()
	if err == nil {
		if len(records) > cfg.Limit {
			records = records[:cfg.Limit]
		}
		var data []byte
		data, err = encodeRecords(records)
		if err != nil {
			err = errors.Join(ErrPayload, err)
		} else {
			err = writeAtomic(cfg.Output, data)
		}
	}
	rep.Duration = time.Since(triggered)

	if err != nil {
		rep.Err = err
		rep.Error = err.Error()
		rep.Stage = StageFetch
		if errors.Is(err, ErrWrite) {
			rep.Stage = StageWrite
			log.Error("artifact write failed", logx.String("output", cfg.Output), logx.Err(err))
		} else {
			log.Warn("fetch failed", logx.String("url", cfg.URL), logx.Err(err))
		}
		eventbus.Publish(t.bus, eventbus.FetchFailed, rep)
		return rep
	}

	rep.Count = len(records)
	log.Info("fetched and saved",
		logx.Time("at", triggered),
		logx.Int("count", rep.Count),
		logx.String("output", cfg.Output),
		logx.Duration("took", rep.Duration),
	)
	eventbus.Publish(t.bus, eventbus.FetchSucceeded, rep)
	return rep
}
