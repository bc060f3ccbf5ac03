package app

import (
	"context"
	"errors"
	"fmt"

	"cronex/internal/eventbus"
	"cronex/internal/fetch"
	"cronex/internal/storage"
	"cronex/internal/task/scheduler"
	"cronex/internal/trigger"
	logx "cronex/pkg/logx"
)

// registerFetchSchedules replaces the fetch registrations with cfg's list.
// Invalid entries are skipped and reported together.
func (a *App) registerFetchSchedules(cfg *Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, h := range a.fetchHandles {
		h.Cancel()
	}
	a.fetchHandles = nil
	if !cfg.Fetch.Enabled {
		a.log.Info("fetch disabled; no schedules registered")
		return nil
	}

	var errs []error
	for i, sc := range cfg.Fetch.Schedules {
		opts, err := mapScheduleOptions(i, sc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		h, err := a.sched.Schedule(sc.Label, sc.Rule, a.fetch.Job(sc.Label), opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("fetch.schedules[%d].rule: %w", i, err))
			continue
		}
		a.fetchHandles = append(a.fetchHandles, h)
	}
	return errors.Join(errs...)
}

// attachTrigger connects the configured event sources to the runner,
// detaching any previous ones first.
func (a *App) attachTrigger(cfg *Config) error {
	a.detachTrigger()
	if !cfg.Trigger.Enabled {
		return nil
	}

	every, err := parseDurationField("trigger.interval", cfg.Trigger.Interval)
	if err != nil {
		return err
	}

	var detach []func()
	if every > 0 {
		src, err := trigger.NewIntervalSource(a.sched, every, cfg.Trigger.EmailDomain)
		if err != nil {
			return err
		}
		d, err := a.runner.Attach(src)
		if err != nil {
			return fmt.Errorf("trigger.interval: %w", err)
		}
		detach = append(detach, d)
	}
	if cfg.Trigger.BusSource {
		d, err := a.runner.Attach(trigger.NewBusSource(a.bus, 64, a.log.Named("trigger.bus")))
		if err != nil {
			for _, fn := range detach {
				fn()
			}
			return fmt.Errorf("trigger.bus_source: %w", err)
		}
		detach = append(detach, d)
	}

	a.mu.Lock()
	a.triggerDetach = detach
	a.mu.Unlock()
	a.log.Debug("trigger sources attached", logx.Int("sources", len(detach)), logx.Duration("interval", every))
	return nil
}

func (a *App) detachTrigger() {
	a.mu.Lock()
	detach := a.triggerDetach
	a.triggerDetach = nil
	a.mu.Unlock()
	for _, fn := range detach {
		fn()
	}
}

// logEvents mirrors bus traffic at debug level.
func (a *App) logEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			// Keep this debug-level; the 5s schedule would flood info.
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// mirrorToStorage appends fetch reports and registrations to the store.
func (a *App) mirrorToStorage(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.Named("storage.mirror")
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			var err error
			switch d := e.Data.(type) {
			case fetch.Report:
				if e.Type != eventbus.FetchSucceeded && e.Type != eventbus.FetchFailed {
					continue
				}
				err = a.store.AppendRun(ctx, runRecord(d))
			case trigger.User:
				if e.Type != eventbus.UserRegistered {
					continue
				}
				err = a.store.AppendUser(ctx, userRecord(d))
			default:
				continue
			}
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("storage append failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}

func runRecord(r fetch.Report) storage.RunRecord {
	return storage.RunRecord{
		At:         r.Triggered,
		Label:      r.Label,
		OK:         r.OK(),
		Stage:      r.Stage,
		Count:      r.Count,
		Output:     r.Output,
		DurationMS: r.Duration.Milliseconds(),
		Error:      r.Error,
	}
}

func userRecord(u trigger.User) storage.UserRecord {
	return storage.UserRecord{
		ID:           u.ID.String(),
		Seq:          u.Seq,
		Name:         u.Name,
		Email:        u.Email,
		RegisteredAt: u.RegisteredAt,
	}
}

// logSchedules writes the startup banner: one line per registration.
func (a *App) logSchedules(snap scheduler.Snapshot) {
	a.log.Info("schedules",
		logx.Bool("enabled", snap.Enabled),
		logx.String("tz", snap.Timezone),
		logx.Int("count", len(snap.Schedules)),
	)
	for _, s := range snap.Schedules {
		fields := []logx.Field{
			logx.String("name", s.Name),
			logx.String("spec", s.Spec),
			logx.String("overlap", s.Overlap),
		}
		if !s.Next.IsZero() {
			fields = append(fields, logx.Time("next", s.Next))
		}
		a.log.Info("schedule", fields...)
	}
}
