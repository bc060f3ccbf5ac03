package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/fsnotify/fsnotify"

	logx "cronex/pkg/logx"
)

const reloadDebounce = 250 * time.Millisecond

// strictJSON rejects unknown keys so typos fail loudly instead of silently
// falling back to defaults.
var strictJSON = sonic.Config{
	DisallowUnknownFields: true,
	EscapeHTML:            true,
	SortMapKeys:           true,
	ValidateString:        true,
}.Froze()

type ConfigManager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// subsMu guards subscriber list and ensures we never send on a channel
	// that is concurrently being closed in Unsubscribe().
	subsMu sync.Mutex
	subs   []chan *Config

	log       logx.Logger
	validator func(ctx context.Context, cfg *Config) error

	// lastHash tracks the last committed config so editor write bursts
	// without content changes don't republish.
	lastHash uint64
}

// NewConfigManager manages the config at path. An empty path means built-in
// defaults and no hot reload.
func NewConfigManager(path string) *ConfigManager {
	return &ConfigManager{path: strings.TrimSpace(path), log: logx.Nop()}
}

func (m *ConfigManager) Path() string { return m.path }

func (m *ConfigManager) SetLogger(log logx.Logger) {
	if log.IsZero() {
		log = logx.Nop()
	}
	m.log = log
}

// SetValidator installs a validation hook used by Watch() before committing/publishing.
func (m *ConfigManager) SetValidator(fn func(ctx context.Context, cfg *Config) error) {
	m.validator = fn
}

// Parse reads and decodes the file on top of Default().
func (m *ConfigManager) Parse() (*Config, error) {
	if m.path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return Decode(m.path, b)
}

// Decode parses data as the format implied by path's extension.
func Decode(path string, data []byte) (*Config, error) {
	jb, format, err := coerceToJSONBytes(path, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(jb)) == "" {
		return Default(), nil
	}
	// Reject trailing tokens (e.g. concatenated JSON documents).
	if !json.Valid(jb) {
		return nil, fmt.Errorf("decode %s config: invalid JSON document", format)
	}
	cfg := Default()
	// A present fetch.schedules list replaces the defaults wholesale.
	if err := strictJSON.Unmarshal(jb, cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	return cfg, nil
}

func (m *ConfigManager) Commit(cfg *Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hashConfig(cfg)
	m.mu.Unlock()
}

func hashConfig(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := strictJSON.Marshal(cfg)
	if err != nil || len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

func (m *ConfigManager) Load() (*Config, error) {
	cfg, err := m.Parse()
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	m.Commit(cfg)
	return cfg, nil
}

func (m *ConfigManager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *ConfigManager) Subscribe(buffer int) chan *Config {
	ch := make(chan *Config, buffer)
	m.subsMu.Lock()
	m.subs = append(m.subs, ch)
	m.subsMu.Unlock()
	return ch
}

func (m *ConfigManager) Unsubscribe(ch chan *Config) {
	if ch == nil {
		return
	}
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for i, s := range m.subs {
		if s == ch {
			last := len(m.subs) - 1
			m.subs[i] = m.subs[last]
			m.subs[last] = nil
			m.subs = m.subs[:last]
			close(ch)
			return
		}
	}
}

func (m *ConfigManager) publish(cfg *Config) {
	// Hold subsMu while sending to avoid send-on-closed panics.
	m.subsMu.Lock()
	defer m.subsMu.Unlock()
	for _, ch := range m.subs {
		if ch == nil {
			continue
		}
		// Latest wins: if the subscriber is slow, drop one stale item first.
		select {
		case ch <- cfg:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- cfg:
			default:
				m.log.Debug(
					"config update dropped (subscriber slow)",
					logx.Int("queue_len", len(ch)),
					logx.Int("queue_cap", cap(ch)),
				)
			}
		}
	}
}

// reload parses, dedups, validates, commits and publishes. It returns true
// when a new config was published.
func (m *ConfigManager) reload(ctx context.Context) bool {
	cfg, err := m.Parse()
	if err != nil {
		m.log.Warn("config parse failed", logx.String("path", m.path), logx.Err(err))
		return false
	}

	h := hashConfig(cfg)
	m.mu.RLock()
	unchanged := h != 0 && h == m.lastHash
	m.mu.RUnlock()
	if unchanged {
		m.log.Debug("config unchanged; skipping publish", logx.String("path", m.path))
		return false
	}

	if err := Validate(cfg); err != nil {
		m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
		return false
	}
	if m.validator != nil {
		vctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := m.validator(vctx, cfg)
		cancel()
		if err != nil {
			m.log.Warn("config rejected", logx.String("path", m.path), logx.Err(err))
			return false
		}
	}

	m.Commit(cfg)
	m.publish(cfg)
	m.log.Debug("config published", logx.String("path", m.path), logx.String("hash", fmt.Sprintf("%x", h)))
	return true
}

// Watch reloads the config whenever its file changes, until ctx is done.
// It returns immediately when no path is configured.
func (m *ConfigManager) Watch(ctx context.Context) error {
	if m.path == "" {
		return nil
	}
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	// fsnotify can get into a bad state with some editors and platforms.
	// Self-heal by recreating the watcher with a small exponential backoff.
	const (
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	backoff := restartBackoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	nextWait := func() time.Duration {
		wait := backoff + time.Duration(rng.Int63n(int64(backoff/2)+1))
		backoff = min(backoff*2, restartBackoffMax)
		return wait
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
		timer = time.AfterFunc(reloadDebounce, func() {
			if ctx.Err() != nil {
				return
			}
			m.reload(ctx)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	sleep := func(d time.Duration) bool {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		w, err := fsnotify.NewWatcher()
		if err != nil {
			m.log.Warn("config watch init failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		// Watch the directory: editors often replace the file via rename.
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			m.log.Warn("config watch add failed", logx.Err(err), logx.String("dir", dir))
			if !sleep(nextWait()) {
				return nil
			}
			continue
		}

		backoff = restartBackoffBase
		m.log.Debug("config watcher started", logx.String("dir", dir), logx.String("file", file))

		broken := false
		for !broken {
			select {
			case <-ctx.Done():
				_ = w.Close()
				return nil
			case ev, ok := <-w.Events:
				if !ok {
					broken = true
					break
				}
				if strings.EqualFold(filepath.Base(ev.Name), file) &&
					ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
					debounce()
				}
			case err, ok := <-w.Errors:
				if !ok {
					broken = true
					break
				}
				if err == nil {
					continue
				}
				if strings.Contains(strings.ToLower(err.Error()), "overflow") {
					m.log.Warn("config watch overflow; forcing reload", logx.Err(err), logx.String("dir", dir))
					debounce()
					continue
				}
				m.log.Warn("config watch error", logx.Err(err), logx.String("dir", dir))
				if strings.Contains(strings.ToLower(err.Error()), "closed") {
					broken = true
				}
			}
		}

		_ = w.Close()
		wait := nextWait()
		m.log.Warn("config watcher stopped; restarting",
			logx.String("dir", dir),
			logx.String("file", file),
			logx.Duration("backoff", wait),
		)
		if !sleep(wait) {
			return nil
		}
	}
}
