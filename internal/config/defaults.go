package config

// Default returns the built-in configuration: the three fetch schedules,
// synthetic registrations every 5s and console logging at info.
//
// Loading a file decodes on top of these values, so a file only needs the
// keys it changes. Lists (fetch.schedules) are replaced, not merged.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Enabled: false, Path: "./cronex.log"},
		},
		Scheduler: SchedulerConfig{Enabled: true},
		Fetch: FetchConfig{
			Enabled: true,
			URL:     "https://jsonplaceholder.typicode.com/posts",
			Limit:   5,
			Output:  "data.json",
			Timeout: "10s",
			Schedules: []ScheduleConfig{
				{Label: "Every 5 Seconds", Rule: "*/5 * * * * *"},
				{Label: "Every Hour", Rule: "0 * * * *"},
				{Label: "Every 2 Minutes", Rule: "*/2 * * * *"},
			},
		},
		Trigger: TriggerConfig{
			Enabled:     true,
			Interval:    "5s",
			EmailDomain: "example.com",
			BusSource:   true,
		},
	}
}
