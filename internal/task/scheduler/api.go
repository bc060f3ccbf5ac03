package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"cronex/internal/task/engine"
	logx "cronex/pkg/logx"
)

// Options are per-schedule execution parameters.
type Options struct {
	// Timeout bounds a single invocation. 0 uses the engine default.
	Timeout time.Duration
	Overlap OverlapPolicy
	// MaxConcurrent bounds concurrent invocations of this schedule. 0 means unbounded.
	MaxConcurrent int
}

func (o Options) taskOptions() TaskOptions {
	return TaskOptions{Overlap: o.Overlap, ConcurrencyLimit: o.MaxConcurrent}
}

// Schedule parses rule and registers job under name. Names are labels, not
// keys: registering the same name twice yields two independent schedules.
//
// Supported rule formats:
//   - Cron with seconds: "*/5 * * * * *"
//   - Cron: "*/2 * * * *", "0 * * * *", "@hourly", "@every 55m"
//   - Interval duration: "55m", "2h30m"
//   - Interval HH:MM: "00:50" (50 minutes), "02:30" (2 hours 30 minutes)
func (s *Service) Schedule(name, rule string, job Job, opts Options) (Handle, error) {
	ps, err := ParseSchedule(rule)
	if err != nil {
		return Handle{}, err
	}
	switch ps.Kind {
	case SpecCron:
		return s.add(name, ps.Cron, 0, job, opts)
	case SpecInterval:
		return s.add(name, ps.Spec(), ps.Every, job, opts)
	default:
		return Handle{}, fmt.Errorf("unsupported schedule kind")
	}
}

// AddCron registers a cron rule with default options (overlap allowed).
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (Handle, error) {
	ps, err := ParseSchedule("cron:" + spec)
	if err != nil {
		return Handle{}, err
	}
	return s.add(name, ps.Cron, 0, job, Options{Timeout: timeout})
}

// AddInterval registers a fixed interval with default options (overlap allowed).
func (s *Service) AddInterval(name string, every, timeout time.Duration, job Job) (Handle, error) {
	if every <= 0 {
		return Handle{}, errors.New("interval must be > 0")
	}
	return s.add(name, "@every "+every.String(), every, job, Options{Timeout: timeout})
}

func (s *Service) add(name, spec string, every time.Duration, job Job, opts Options) (Handle, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Handle{}, errors.New("name required")
	}
	if job == nil {
		return Handle{}, errors.New("job required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	kind := "cron"
	if every > 0 {
		kind = "interval"
	}
	id := fmt.Sprintf("%s:%d", kind, s.seq)
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		every:   every,
		timeout: opts.Timeout,
		job:     job,
		opt:     opts.taskOptions(),
		state:   &engine.RunState{},
	}
	s.defs = append(s.defs, d)
	h := Handle{ID: id, Name: name, svc: s}

	// Not started yet: the definition is registered when Start runs.
	if s.c == nil {
		return h, nil
	}
	if err := s.registerLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.defs = s.defs[:len(s.defs)-1]
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return Handle{}, err
	}
	return h, nil
}

// Remove unschedules every registration with the given name. It returns true
// if something was removed.
func (s *Service) Remove(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	removed := s.removeLocked(func(d scheduleDef) bool { return d.name == name })
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

func (s *Service) removeByID(id string) bool {
	s.mu.Lock()
	removed := s.removeLocked(func(d scheduleDef) bool { return d.id == id })
	s.mu.Unlock()
	if removed {
		s.forgetEnqueueWarn(id)
		s.log.Debug("schedule canceled", logx.String("id", id))
	}
	return removed
}

// removeLocked drops matching defs and unregisters them from cron if running.
// Call with s.mu held.
func (s *Service) removeLocked(match func(scheduleDef) bool) bool {
	removed := false
	n := 0
	for _, d := range s.defs {
		if match(d) {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// registerLocked adds d to the running cron. Call with s.mu held.
func (s *Service) registerLocked(d *scheduleDef) error {
	id, name, timeout, run, opt, state := d.id, d.name, d.timeout, d.job, d.opt, d.state
	job := cron.FuncJob(func() {
		if s.engine == nil {
			return
		}
		err := s.engine.Enqueue(engine.Task{
			Name:    name,
			Group:   id,
			Timeout: timeout,
			Run:     run,
			Opt:     opt,
			State:   state,
		})
		if err != nil {
			s.reportEnqueueError(id, name, err)
		}
	})

	if d.every > 0 {
		var sched cron.Schedule = cron.Every(d.every)
		d.startupSpread = 0
		if s.cfg.StartupSpread {
			loc := s.loc
			if loc == nil {
				loc = time.Local
			}
			sched, d.startupSpread = withStartupSpread(d.every, time.Now().In(loc), d.id+"/"+d.name)
		}
		d.entryID = s.c.Schedule(sched, job)
	} else {
		eid, err := s.c.AddJob(d.spec, job)
		if err != nil {
			return err
		}
		d.entryID = eid
	}

	args := []logx.Field{logx.String("name", d.name), logx.String("id", d.id), logx.String("spec", d.spec), logx.Duration("timeout", d.timeout)}
	if next := s.previewNextRunsLocked(d.spec, 4); next != "" {
		args = append(args, logx.String("next", next))
	}
	s.log.Debug("schedule registered", args...)
	return nil
}

// previewNextRunsLocked returns a short, human-friendly list of upcoming run
// times. Call with s.mu held.
func (s *Service) previewNextRunsLocked(spec string, n int) string {
	if !s.log.Enabled(logx.LevelDebug) || n <= 0 {
		return ""
	}
	runs, err := NextRuns(spec, time.Now(), s.loc, n)
	if err != nil {
		return ""
	}
	parts := make([]string, 0, len(runs))
	for _, t := range runs {
		parts = append(parts, t.Format("2006-01-02 15:04:05"))
	}
	return strings.Join(parts, ", ")
}

// Preview returns the next n fire times of rule in the scheduler timezone.
func (s *Service) Preview(rule string, n int) ([]time.Time, error) {
	s.mu.Lock()
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	s.mu.Unlock()
	return NextRuns(rule, time.Now(), loc, n)
}
