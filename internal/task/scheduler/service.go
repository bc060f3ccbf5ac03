package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"cronex/internal/eventbus"
	"cronex/internal/task/engine"
	logx "cronex/pkg/logx"
)

// NewParser returns the rule parser shared by the service and the CLI.
// SecondOptional accepts both 5-field and 6-field (leading seconds) rules.
func NewParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func New(cfg Config, eng *engine.Service, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		engine:  eng,
		parser:  NewParser(),
		enqWarn: map[string]*enqueueWarn{},
	}
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	s.cfg = cfg

	if s.c == nil {
		return
	}
	if oldTZ != newTZ {
		s.restartLocked()
	}
}

// Start starts cron triggering for every registered definition.
func (s *Service) Start(ctx context.Context) {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil || !s.cfg.Enabled {
		return
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = s.newCronLocked(loc)
	s.registerAllLocked()
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

// Stop stops cron triggering. Definitions are kept so Start can resume them.
// Tasks already handed to the engine are not affected.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()

	s.mu.Lock()
	c := s.c
	s.c = nil
	for i := range s.defs {
		s.defs[i].entryID = 0
	}
	s.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) newCronLocked(loc *time.Location) *cron.Cron {
	cl := cronLogger{log: s.log}
	return cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)
}

func (s *Service) restartLocked() {
	if s.c != nil {
		<-s.c.Stop().Done()
	}
	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = s.newCronLocked(loc)
	s.registerAllLocked()
	s.c.Start()
	s.log.Info("scheduler restarted", logx.String("tz", loc.String()), logx.Int("schedules", len(s.defs)))
}

func (s *Service) registerAllLocked() {
	for i := range s.defs {
		if err := s.registerLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.String("spec", s.defs[i].spec), logx.Err(err))
		}
	}
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	if !l.log.Enabled(logx.LevelDebug) {
		return
	}
	l.log.Debug("cron: "+msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
