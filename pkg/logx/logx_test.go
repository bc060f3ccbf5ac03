package logx

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedReplacesComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").Named("app").With(String("run", "1"))

	log.Named("fetch").Info("fetched", Int("count", 2), Err(nil))

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, 1, strings.Count(line, `"comp"`))

	var rec map[string]any
	require.NoError(t, sonic.ConfigStd.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "fetch", rec["comp"])
	assert.Equal(t, "1", rec["run"])
	assert.Equal(t, float64(2), rec["count"])
	assert.Equal(t, "fetched", rec["message"])
	assert.NotContains(t, rec, "err")
	assert.Contains(t, rec["caller"], "logx_test.go:")
}

func TestLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "warning")

	log.Info("hidden")
	log.Warn("shown", Err(errors.New("boom")))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"err":"boom"`)
	assert.False(t, log.Enabled(LevelDebug))
	assert.True(t, NewWriter(&buf, "").Enabled(LevelDebug))
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "trace", "DEBUG", " info ", "warn", "Warning", "error"} {
		assert.True(t, ValidLevel(s), s)
	}
	for _, s := range []string{"verbose", "fatal", "panic", "5"} {
		assert.False(t, ValidLevel(s), s)
	}
}

func TestZeroAndNopLoggers(t *testing.T) {
	t.Parallel()
	var zero Logger
	assert.True(t, zero.IsZero())
	zero.Error("dropped")
	assert.False(t, Nop().IsZero())
	assert.False(t, zero.Named("x").IsZero())
}

func TestServiceApplySwitchesFileSink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "a.log")
	second := filepath.Join(dir, "b.log")

	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: first}})
	t.Cleanup(func() { _ = svc.Close() })
	log = log.Named("test")

	log.Debug("below level")
	log.Info("to first")
	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: second}})
	log.Debug("to second")

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Contains(t, string(a), "to first")
	assert.NotContains(t, string(a), "below level")
	assert.NotContains(t, string(a), "to second")
	assert.Contains(t, string(b), "to second")
	assert.Contains(t, string(b), `"comp":"test"`)
}
