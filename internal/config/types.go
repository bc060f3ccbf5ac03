package config

// Config is the whole runtime configuration.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// TaskEngine controls execution of scheduled callbacks.
	// If omitted, engine defaults apply and it follows scheduler.enabled.
	TaskEngine *TaskEngineConfig `json:"task_engine,omitempty"`

	Fetch   FetchConfig    `json:"fetch"`
	Trigger TriggerConfig  `json:"trigger"`
	Storage *StorageConfig `json:"storage,omitempty"`
	Status  *StatusConfig  `json:"status,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the trigger side.
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// Timezone used to evaluate rules. Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	// StartupSpread randomizes the first firing of interval rules.
	StartupSpread bool `json:"startup_spread,omitempty"`
}

// TaskEngineConfig controls the worker pool.
//
// Enabled is a pointer so we can distinguish "omitted" (default to
// scheduler.enabled) from an explicit false.
//
// Defaults (when fields are omitted/zero):
//   - workers: 8
//   - queue_size: 256
//   - default_timeout: "0s" (disabled)
//   - max_queue_delay: "0s" (disabled)
//   - history_size: 200
type TaskEngineConfig struct {
	Enabled *bool `json:"enabled,omitempty"`
	Workers int   `json:"workers,omitempty"`

	QueueSize int `json:"queue_size,omitempty"`

	DefaultTimeout string `json:"default_timeout,omitempty"`
	MaxQueueDelay  string `json:"max_queue_delay,omitempty"`

	HistorySize int `json:"history_size,omitempty"`
}

// FetchConfig configures the fetch-and-persist task and the schedules that
// drive it.
type FetchConfig struct {
	Enabled bool `json:"enabled"`

	URL        string  `json:"url"`
	Limit      int     `json:"limit"`
	Output     string  `json:"output"`
	Timeout    string  `json:"timeout,omitempty"`
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	UserAgent  string  `json:"user_agent,omitempty"`

	Schedules []ScheduleConfig `json:"schedules"`
}

// ScheduleConfig is one recurrence driving the fetch task.
//
// Example:
//
//	{ "label": "Every 5 Seconds", "rule": "*/5 * * * * *", "overlap": "skip" }
type ScheduleConfig struct {
	Label string `json:"label"`
	Rule  string `json:"rule"`

	// Overlap is "allow" (default) or "skip".
	Overlap       string `json:"overlap,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"`
	Timeout       string `json:"timeout,omitempty"`
}

// TriggerConfig configures the register runner and its event sources.
type TriggerConfig struct {
	Enabled bool `json:"enabled"`

	// Interval between synthetic registrations. "0s" disables the interval source.
	Interval    string `json:"interval"`
	EmailDomain string `json:"email_domain,omitempty"`

	// BusSource registers users for user.signup events on the in-process bus.
	BusSource bool `json:"bus_source"`
}

// StorageConfig controls the optional persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./var/cronex.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// StatusConfig controls the local status/pprof HTTP endpoint.
//
// Example:
//
//	"status": { "enabled": true, "addr": "127.0.0.1:6061", "pprof": true }
type StatusConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`

	// AllowPublic permits a non-loopback addr. The endpoint has no auth.
	AllowPublic bool `json:"allow_public,omitempty"`
}
