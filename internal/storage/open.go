package storage

import (
	"errors"
	"strings"

	logx "cronex/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}

// ValidDriver reports whether Open understands driver.
func ValidDriver(driver string) bool {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "none", "file", "sqlite", "sqlite3":
		return true
	default:
		return false
	}
}
