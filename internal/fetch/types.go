// Package fetch implements the fetch-and-persist task: one GET against a
// remote JSON array, truncated to the first K records and written atomically
// to a single output artifact.
package fetch

import (
	"errors"
	"time"
)

const (
	DefaultURL     = "https://jsonplaceholder.typicode.com/posts"
	DefaultLimit   = 5
	DefaultOutput  = "data.json"
	DefaultTimeout = 10 * time.Second

	defaultUserAgent = "cronex/1"
	maxBodyBytes     = 32 << 20
)

var (
	// ErrNetwork covers connection errors, timeouts and non-2xx responses.
	ErrNetwork = errors.New("fetch: network")
	// ErrPayload means the response was not a JSON array.
	ErrPayload = errors.New("fetch: payload")
	// ErrWrite means the artifact could not be persisted.
	ErrWrite = errors.New("fetch: write")
)

type Config struct {
	URL     string
	Limit   int
	Output  string
	Timeout time.Duration

	// RatePerSec caps outbound requests across all schedules. 0 disables.
	RatePerSec float64
	UserAgent  string
}

func (c Config) withDefaults() Config {
	if c.URL == "" {
		c.URL = DefaultURL
	}
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.Output == "" {
		c.Output = DefaultOutput
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RatePerSec < 0 {
		c.RatePerSec = 0
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Stage names where an invocation stopped.
const (
	StageFetch = "fetch"
	StageWrite = "write"
)

// Report describes one invocation. It is logged, published on the bus and
// mirrored to storage.
type Report struct {
	Label     string        `json:"label"`
	Triggered time.Time     `json:"triggered"`
	Duration  time.Duration `json:"duration"`
	Count     int           `json:"count"`
	Output    string        `json:"output"`
	Stage     string        `json:"stage,omitempty"`
	Error     string        `json:"error,omitempty"`

	Err error `json:"-"`
}

func (r Report) OK() bool { return r.Err == nil }
