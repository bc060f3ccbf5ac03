package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"cronex/internal/eventbus"
	"cronex/internal/fetch"
	"cronex/internal/observability/status"
	"cronex/internal/runtime/supervisor"
	"cronex/internal/storage"
	"cronex/internal/task/engine"
	"cronex/internal/task/scheduler"
	"cronex/internal/trigger"
	logx "cronex/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	engine *engine.Service
	sched  *scheduler.Service
	fetch  *fetch.Task
	runner *trigger.Runner
	status *status.Service

	mu            sync.Mutex
	fetchHandles  []scheduler.Handle
	triggerDetach []func()
}

// NewApp loads the config at cfgPath (empty means built-in defaults) and
// builds every service. Nothing runs until Start.
func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.Named("app")

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.Named("storage"))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	engCfg, err := mapTaskEngineConfig(cfg)
	if err != nil {
		return nil, err
	}
	engineSvc := engine.New(engCfg, log.Named("taskengine"), bus)
	schedSvc := scheduler.New(mapSchedulerConfig(cfg), engineSvc, log.Named("scheduler"), bus)

	fetchCfg, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	fetchTask := fetch.New(fetchCfg, log.Named("fetch"), bus)
	runner := trigger.NewRunner(log.Named("trigger"), bus)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		engine:  engineSvc,
		sched:   schedSvc,
		fetch:   fetchTask,
		runner:  runner,
	}
	a.status = status.New(mapStatusConfig(cfg), a.statusSnapshot, log.Named("status"))
	return a, nil
}

// Status is the document served at /status.
type Status struct {
	Config     string              `json:"config"`
	Users      int                 `json:"users"`
	BusDropped uint64              `json:"bus_dropped"`
	Goroutines supervisor.Counters `json:"goroutines"`
	Fetch      fetch.Config        `json:"fetch"`
	Scheduler  scheduler.Snapshot  `json:"scheduler"`
}

func (a *App) statusSnapshot() any {
	return Status{
		Config:     displayPath(a.cfgPath),
		Users:      a.runner.Users().Len(),
		BusDropped: eventbus.Dropped(a.bus),
		Goroutines: a.sup.Counters(),
		Fetch:      a.fetch.Config(),
		Scheduler:  a.sched.Snapshot(),
	}
}

func (a *App) Bus() eventbus.Bus { return a.bus }
func (a *App) Runner() *trigger.Runner { return a.runner }
func (a *App) Snapshot() scheduler.Snapshot { return a.sched.Snapshot() }
func (a *App) FetchConfig() fetch.Config { return a.fetch.Config() }
func (a *App) ConfigManager() *ConfigManager { return a.cfgm }
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	cfg := a.cfgm.Get()

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.Named("config"))
	a.cfgm.SetValidator(func(_ context.Context, cfg *Config) error {
		if _, err := mapTaskEngineConfig(cfg); err != nil {
			return err
		}
		if _, err := mapFetchConfig(cfg); err != nil {
			return err
		}
		for i, sc := range cfg.Fetch.Schedules {
			if _, err := mapScheduleOptions(i, sc); err != nil {
				return err
			}
		}
		_, _, err := mapStorageConfig(cfg)
		return err
	})

	// Subscribe before anything can fire so no event is missed.
	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			a.logEvents(c, events)
		})
		if a.store != nil {
			records, unsubStore := a.bus.Subscribe(256)
			a.sup.Go0("storage.mirror", func(c context.Context) {
				defer unsubStore()
				a.mirrorToStorage(c, records)
			})
		}
	}

	if a.engine.Enabled() {
		a.engine.Start(a.sup.Context())
	}
	if err := a.registerFetchSchedules(cfg); err != nil {
		return err
	}
	if err := a.attachTrigger(cfg); err != nil {
		return err
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}
	a.logSchedules(a.sched.Snapshot())
	if a.status.Enabled() {
		a.status.Start(a.sup.Context())
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		// Track last applied config to generate a safe diff summary.
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.String("config", displayPath(a.cfgPath)))
	return nil
}

// applyConfig moves the running services from prev to next. Sections that
// cannot change live (storage) only log a warning.
func (a *App) applyConfig(ctx context.Context, prev, next *Config) {
	sections, attrs := SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "storage") {
		a.log.Warn("storage config changed; restart required for changes to take effect")
	}

	// apply logging updates
	a.logs.Apply(mapLogConfig(next))

	// apply scheduler/taskengine updates (live)
	prevSchedEnabled := a.sched.Enabled()
	prevEngEnabled := a.engine.Enabled()

	newEngCfg, err := mapTaskEngineConfig(next)
	if err != nil {
		a.log.Warn("invalid task_engine config; keeping previous", logx.Err(err))
	} else {
		a.engine.Apply(ctx, newEngCfg)
	}
	a.sched.Apply(mapSchedulerConfig(next))

	newSchedEnabled := next.Scheduler.Enabled
	newEngEnabled := a.engine.Enabled()

	// scheduler first on shutdown; engine first on startup
	if prevSchedEnabled && !newSchedEnabled {
		a.log.Info("scheduler disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.sched.Stop(stopCtx)
		cancel()
	}
	if prevEngEnabled && !newEngEnabled {
		a.log.Info("task engine disabled via config")
		stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		a.engine.Stop(stopCtx)
		cancel()
	}
	if !prevEngEnabled && newEngEnabled {
		a.log.Info("task engine enabled via config")
		a.engine.Start(ctx)
	}
	if !prevSchedEnabled && newSchedEnabled {
		a.log.Info("scheduler enabled via config")
		a.sched.Start(ctx)
	}

	if slices.Contains(sections, "fetch") {
		if fc, err := mapFetchConfig(next); err != nil {
			a.log.Warn("invalid fetch config; keeping previous", logx.Err(err))
		} else {
			a.fetch.Apply(fc)
		}
		if prev == nil || prev.Fetch.Enabled != next.Fetch.Enabled || !slices.Equal(prev.Fetch.Schedules, next.Fetch.Schedules) {
			if err := a.registerFetchSchedules(next); err != nil {
				a.log.Warn("fetch schedules partially registered", logx.Err(err))
			}
		}
	}
	if slices.Contains(sections, "status") {
		a.status.Reconfigure(ctx, mapStatusConfig(next))
	}
	if slices.Contains(sections, "trigger") {
		if err := a.attachTrigger(next); err != nil {
			a.log.Warn("trigger sources not attached", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			// fn must honor stepCtx; if it doesn't, log the leak and move on.
			a.log.Warn(
				"stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	// Sources first so no new registrations arrive, then triggers, then execution.
	step("status", 1*time.Second, func(c context.Context) error { a.status.Stop(c); return nil })
	step("trigger", 1*time.Second, func(context.Context) error { a.detachTrigger(); return nil })
	step("scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	step("taskengine", 3*time.Second, func(c context.Context) error { a.engine.Stop(c); return nil })

	// Wait for supervised goroutines (config watch/reload, event subscribers) before closing the store.
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("storage", 1*time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int("users", a.runner.Users().Len()))
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func displayPath(p string) string {
	if strings.TrimSpace(p) == "" {
		return "(built-in defaults)"
	}
	return p
}
