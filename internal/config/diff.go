package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cronex/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and
// structured attrs for the reload log line.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.enabled", newCfg.Scheduler.Enabled),
			logx.String("scheduler.timezone", strings.TrimSpace(newCfg.Scheduler.Timezone)),
		)
	}

	oTE := derefTaskEngine(oldCfg.TaskEngine)
	nTE := derefTaskEngine(newCfg.TaskEngine)
	if (oldCfg.TaskEngine != nil) != (newCfg.TaskEngine != nil) || !reflect.DeepEqual(oTE, nTE) {
		changed = append(changed, "task_engine")
		attrs = append(attrs,
			logx.Bool("task_engine.present", newCfg.TaskEngine != nil),
			logx.Int("task_engine.workers", nTE.Workers),
			logx.Int("task_engine.queue_size", nTE.QueueSize),
			logx.String("task_engine.default_timeout", strings.TrimSpace(nTE.DefaultTimeout)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Fetch, newCfg.Fetch) {
		changed = append(changed, "fetch")
		attrs = append(attrs,
			logx.Bool("fetch.enabled", newCfg.Fetch.Enabled),
			logx.String("fetch.url", newCfg.Fetch.URL),
			logx.Int("fetch.limit", newCfg.Fetch.Limit),
			logx.Int("fetch.schedules", len(newCfg.Fetch.Schedules)),
			logx.Bool("fetch.schedules_changed", !reflect.DeepEqual(oldCfg.Fetch.Schedules, newCfg.Fetch.Schedules)),
		)
	}

	if oldCfg.Trigger != newCfg.Trigger {
		changed = append(changed, "trigger")
		attrs = append(attrs,
			logx.Bool("trigger.enabled", newCfg.Trigger.Enabled),
			logx.String("trigger.interval", newCfg.Trigger.Interval),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
		)
	}

	var oSt, nSt StatusConfig
	if oldCfg.Status != nil {
		oSt = *oldCfg.Status
	}
	if newCfg.Status != nil {
		nSt = *newCfg.Status
	}
	if oSt != nSt {
		changed = append(changed, "status")
		attrs = append(attrs,
			logx.Bool("status.enabled", nSt.Enabled),
			logx.String("status.addr", strings.TrimSpace(nSt.Addr)),
			logx.Bool("status.pprof", nSt.Pprof),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefTaskEngine(te *TaskEngineConfig) TaskEngineConfig {
	if te == nil {
		return TaskEngineConfig{}
	}
	return *te
}

// TaskEngineEnabled resolves the effective engine flag.
func (c *Config) TaskEngineEnabled() bool {
	if c.TaskEngine != nil && c.TaskEngine.Enabled != nil {
		return *c.TaskEngine.Enabled
	}
	return c.Scheduler.Enabled
}
