package app

import (
	"fmt"
	"strings"
	"time"

	"cronex/internal/config"
	"cronex/internal/fetch"
	"cronex/internal/observability/status"
	"cronex/internal/storage"
	"cronex/internal/task/engine"
	"cronex/internal/task/scheduler"
	logx "cronex/pkg/logx"
)

func mapLogConfig(cfg *Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapSchedulerConfig(cfg *Config) scheduler.Config {
	return scheduler.Config{
		Enabled:       cfg.Scheduler.Enabled,
		Timezone:      cfg.Scheduler.Timezone,
		StartupSpread: cfg.Scheduler.StartupSpread,
	}
}

func mapTaskEngineConfig(cfg *Config) (engine.Config, error) {
	if cfg == nil {
		return engine.Config{}, nil
	}
	out := engine.Config{Enabled: cfg.TaskEngineEnabled()}
	te := cfg.TaskEngine
	if te == nil {
		return out, nil
	}

	// Scheduler triggers would all be rejected by a disabled engine.
	if cfg.Scheduler.Enabled && te.Enabled != nil && !*te.Enabled {
		return engine.Config{}, fmt.Errorf("task_engine.enabled cannot be false while scheduler.enabled is true")
	}

	out.Workers = te.Workers
	out.QueueSize = te.QueueSize
	out.HistorySize = te.HistorySize

	var err error
	if out.DefaultTimeout, err = parseDurationField("task_engine.default_timeout", te.DefaultTimeout); err != nil {
		return engine.Config{}, err
	}
	if out.MaxQueueDelay, err = parseDurationField("task_engine.max_queue_delay", te.MaxQueueDelay); err != nil {
		return engine.Config{}, err
	}
	return out, nil
}

func mapFetchConfig(cfg *Config) (fetch.Config, error) {
	fc := cfg.Fetch
	timeout, err := parseDurationOrDefault("fetch.timeout", fc.Timeout, fetch.DefaultTimeout)
	if err != nil {
		return fetch.Config{}, err
	}
	return fetch.Config{
		URL:        strings.TrimSpace(fc.URL),
		Limit:      fc.Limit,
		Output:     strings.TrimSpace(fc.Output),
		Timeout:    timeout,
		RatePerSec: fc.RatePerSec,
		UserAgent:  strings.TrimSpace(fc.UserAgent),
	}, nil
}

func mapScheduleOptions(i int, sc config.ScheduleConfig) (scheduler.Options, error) {
	overlap, err := engine.ParseOverlap(sc.Overlap)
	if err != nil {
		return scheduler.Options{}, fmt.Errorf("fetch.schedules[%d].overlap: %w", i, err)
	}
	timeout, err := parseDurationField(fmt.Sprintf("fetch.schedules[%d].timeout", i), sc.Timeout)
	if err != nil {
		return scheduler.Options{}, err
	}
	return scheduler.Options{Timeout: timeout, Overlap: overlap, MaxConcurrent: sc.MaxConcurrent}, nil
}

func mapStorageConfig(cfg *Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.TrimSpace(sc.Driver)
	if driver == "" || strings.EqualFold(driver, "none") {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	dl := strings.ToLower(driver)
	switch dl {
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := parseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: dl, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", driver)
	}
}

func mapStatusConfig(cfg *Config) status.Config {
	if cfg == nil || cfg.Status == nil {
		return status.Config{}
	}
	st := cfg.Status
	return status.Config{
		Enabled:     st.Enabled,
		Addr:        strings.TrimSpace(st.Addr),
		Pprof:       st.Pprof,
		AllowPublic: st.AllowPublic,
	}
}
