package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"cronex/internal/storage"
	"cronex/internal/task/engine"
	"cronex/internal/task/scheduler"
	logx "cronex/pkg/logx"
)

// Validate reports every problem in cfg at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}

	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			add(fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	if te := cfg.TaskEngine; te != nil {
		if te.Workers < 0 {
			add(errors.New("task_engine.workers: must be >= 0"))
		}
		if te.QueueSize < 0 {
			add(errors.New("task_engine.queue_size: must be >= 0"))
		}
		if te.HistorySize < 0 {
			add(errors.New("task_engine.history_size: must be >= 0"))
		}
		_, err := ParseDurationField("task_engine.default_timeout", te.DefaultTimeout)
		add(err)
		_, err = ParseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay)
		add(err)
	}

	add(validateFetch(cfg.Fetch))

	if cfg.Trigger.Enabled {
		_, err := ParseDurationField("trigger.interval", cfg.Trigger.Interval)
		add(err)
		if d := strings.TrimSpace(cfg.Trigger.EmailDomain); strings.ContainsAny(d, "@ \t") {
			add(fmt.Errorf("trigger.email_domain: invalid domain %q", d))
		}
	}

	if s := cfg.Storage; s != nil {
		if !storage.ValidDriver(s.Driver) {
			add(fmt.Errorf("storage.driver: unknown driver %q", s.Driver))
		}
		d := strings.ToLower(strings.TrimSpace(s.Driver))
		if d != "" && d != "none" && strings.TrimSpace(s.Path) == "" {
			add(errors.New("storage.path: required when a driver is set"))
		}
		_, err := ParseDurationField("storage.busy_timeout", s.BusyTimeout)
		add(err)
	}

	if st := cfg.Status; st != nil && st.Enabled {
		if addr := strings.TrimSpace(st.Addr); addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("status.addr: %w", err))
			}
		}
	}

	return errors.Join(errs...)
}

func validateFetch(f FetchConfig) error {
	if !f.Enabled {
		return nil
	}
	var errs []error
	u, err := url.Parse(strings.TrimSpace(f.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("fetch.url: must be an absolute http(s) URL, got %q", f.URL))
	}
	if f.Limit < 0 {
		errs = append(errs, errors.New("fetch.limit: must be >= 0"))
	}
	if f.RatePerSec < 0 {
		errs = append(errs, errors.New("fetch.rate_per_sec: must be >= 0"))
	}
	if _, err := ParseDurationField("fetch.timeout", f.Timeout); err != nil {
		errs = append(errs, err)
	}

	for i, s := range f.Schedules {
		p := fmt.Sprintf("fetch.schedules[%d]", i)
		if strings.TrimSpace(s.Label) == "" {
			errs = append(errs, fmt.Errorf("%s.label: required", p))
		}
		if _, err := scheduler.ParseSchedule(s.Rule); err != nil {
			errs = append(errs, fmt.Errorf("%s.rule: %w", p, err))
		}
		if _, err := engine.ParseOverlap(s.Overlap); err != nil {
			errs = append(errs, fmt.Errorf("%s.overlap: %w", p, err))
		}
		if s.MaxConcurrent < 0 {
			errs = append(errs, fmt.Errorf("%s.max_concurrent: must be >= 0", p))
		}
		if _, err := ParseDurationField(p+".timeout", s.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
