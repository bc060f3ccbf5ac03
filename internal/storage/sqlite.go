package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "cronex/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

const defaultBusyTimeout = 5 * time.Second

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	for _, pragma := range []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("sqlite storage opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) AppendRun(ctx context.Context, r RunRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(at, label, ok, stage, count, output, duration_ms, err)
		 VALUES(?,?,?,?,?,?,?,?)`,
		r.At.UTC().Format(time.RFC3339Nano), r.Label, boolInt(r.OK), nullStr(r.Stage),
		r.Count, r.Output, r.DurationMS, nullStr(r.Error),
	)
	return err
}

func (s *sqliteStore) AppendUser(ctx context.Context, u UserRecord) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, seq, name, email, registered_at) VALUES(?,?,?,?,?)`,
		u.ID, u.Seq, u.Name, u.Email, u.RegisteredAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
