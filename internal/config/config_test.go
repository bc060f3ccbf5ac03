package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := Default()
	require.NoError(t, Validate(cfg))
	require.Len(t, cfg.Fetch.Schedules, 3)
	assert.Equal(t, "*/5 * * * * *", cfg.Fetch.Schedules[0].Rule)
	assert.Equal(t, "0 * * * *", cfg.Fetch.Schedules[1].Rule)
	assert.Equal(t, "*/2 * * * *", cfg.Fetch.Schedules[2].Rule)
	assert.True(t, cfg.TaskEngineEnabled())
}

func TestEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("")
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NoError(t, m.Watch(context.Background()))
}

func TestDecodeFormats(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "json",
			file: "cronex.json",
			body: `{"logging":{"level":"debug"},"fetch":{"limit":3,"schedules":[{"label":"fast","rule":"*/10 * * * * *","overlap":"skip"}]}}`,
		},
		{
			name: "yaml",
			file: "cronex.yaml",
			body: "logging:\n  level: debug\nfetch:\n  limit: 3\n  schedules:\n    - label: fast\n      rule: \"*/10 * * * * *\"\n      overlap: skip\n",
		},
		{
			name: "toml",
			file: "cronex.toml",
			body: "[logging]\nlevel = \"debug\"\n\n[fetch]\nlimit = 3\n\n[[fetch.schedules]]\nlabel = \"fast\"\nrule = \"*/10 * * * * *\"\noverlap = \"skip\"\n",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Decode(tt.file, []byte(tt.body))
			require.NoError(t, err)
			require.NoError(t, Validate(cfg))

			assert.Equal(t, "debug", cfg.Logging.Level)
			assert.Equal(t, 3, cfg.Fetch.Limit)
			// Keys absent from the file keep their defaults.
			assert.Equal(t, "data.json", cfg.Fetch.Output)
			assert.True(t, cfg.Trigger.Enabled)
			require.Len(t, cfg.Fetch.Schedules, 1)
			assert.Equal(t, ScheduleConfig{Label: "fast", Rule: "*/10 * * * * *", Overlap: "skip"}, cfg.Fetch.Schedules[0])
		})
	}
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.json", []byte(`{"fetch":{"urll":"http://x"}}`))
	assert.Error(t, err)
	_, err = Decode("c.yaml", []byte("bogus: true\n"))
	assert.Error(t, err)
	_, err = Decode("c.json", []byte(`{} {}`))
	assert.Error(t, err)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Logging.Level = "loud"
	cfg.Scheduler.Timezone = "Mars/Olympus"
	cfg.Fetch.URL = "ftp://example.com"
	cfg.Fetch.Schedules = append(cfg.Fetch.Schedules,
		ScheduleConfig{Label: "", Rule: "not a rule", Overlap: "queue", MaxConcurrent: -1, Timeout: "soon"},
	)
	cfg.Trigger.Interval = "often"
	cfg.Storage = &StorageConfig{Driver: "postgres"}
	cfg.Status = &StatusConfig{Enabled: true, Addr: "6061"}

	err := Validate(cfg)
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"logging.level",
		"scheduler.timezone",
		"fetch.url",
		"fetch.schedules[3].label",
		"fetch.schedules[3].rule",
		"fetch.schedules[3].overlap",
		"fetch.schedules[3].max_concurrent",
		"fetch.schedules[3].timeout",
		"trigger.interval",
		"storage.driver",
		"status.addr",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationField("x", "off")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDurationOrDefault("x", "", 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, d)

	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg := Default()
	newCfg := Default()
	newCfg.Logging.Level = "debug"
	newCfg.Fetch.Schedules = newCfg.Fetch.Schedules[:1]

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"fetch", "logging"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(oldCfg, Default())
	assert.Empty(t, changed)

	withStatus := Default()
	withStatus.Status = &StatusConfig{Enabled: true}
	changed, _ = SummarizeConfigChange(oldCfg, withStatus)
	assert.Equal(t, []string{"status"}, changed)
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cronex.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"info"}}`), 0o644))

	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	updates := m.Subscribe(4)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// Give the watcher a moment to register the directory.
	time.Sleep(200 * time.Millisecond)

	// Invalid content is rejected and not published.
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o644))
	time.Sleep(600 * time.Millisecond)
	assert.Len(t, updates, 0)
	assert.Equal(t, "info", m.Get().Logging.Level)

	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"debug"}}`), 0o644))
	select {
	case cfg := <-updates:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(3 * time.Second):
		t.Fatal("no config published")
	}
	assert.Equal(t, "debug", m.Get().Logging.Level)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}
