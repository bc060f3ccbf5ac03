package config

import (
	"fmt"
	"strings"
	"time"
)

// ParseDurationField parses a Go duration for the config key at path.
// Empty, "off" and "0" all mean zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch s {
	case "", "0", "off", "disabled":
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is ParseDurationField with def substituted for zero.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil || d > 0 {
		return d, err
	}
	return def, nil
}
