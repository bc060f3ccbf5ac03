package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "cronex/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none", " NONE "} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		assert.Nil(t, st)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "postgres", Path: "x"}, logx.Nop())
	assert.Error(t, err)
	assert.False(t, ValidDriver("postgres"))
	assert.True(t, ValidDriver("sqlite"))
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()
	_, err := Open(Config{Driver: "file"}, logx.Nop())
	assert.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	assert.Error(t, err)
}

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileStoreAppends(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()

	st, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state", "cronex.db")}, logx.Nop())
	require.NoError(t, err)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendRun(ctx, RunRecord{At: at, Label: "Every Hour", OK: true, Count: 5, Output: "data.json", DurationMS: 42}))
	require.NoError(t, st.AppendRun(ctx, RunRecord{At: at, Label: "Every 2 Minutes", Stage: "fetch", Error: "boom"}))
	require.NoError(t, st.AppendUser(ctx, UserRecord{ID: "a", Seq: 0, Name: "User1", Email: "user1@example.com", RegisteredAt: at}))
	require.NoError(t, st.Close())

	runs := readLines(t, filepath.Join(dir, "state", "cronex.runs.jsonl"))
	require.Len(t, runs, 2)
	assert.Equal(t, "Every Hour", runs[0]["label"])
	assert.Equal(t, true, runs[0]["ok"])
	assert.EqualValues(t, 5, runs[0]["count"])
	assert.Equal(t, "boom", runs[1]["error"])

	users := readLines(t, filepath.Join(dir, "state", "cronex.users.jsonl"))
	require.Len(t, users, 1)
	assert.Equal(t, "user1@example.com", users[0]["email"])

	assert.ErrorIs(t, st.AppendRun(ctx, RunRecord{}), ErrClosed)
}

func TestFileStoreReopenAppends(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronex")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
		require.NoError(t, err)
		require.NoError(t, st.AppendUser(ctx, UserRecord{ID: "x", Seq: i}))
		require.NoError(t, st.Close())
	}
	assert.Len(t, readLines(t, path+".users.jsonl"), 2)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronex.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.AppendRun(ctx, RunRecord{Label: "Every 5 Seconds", OK: true, Count: 5, Output: "data.json"}))
	require.NoError(t, st.AppendRun(ctx, RunRecord{Label: "Every 5 Seconds", Stage: "write", Output: "data.json", Error: "disk full"}))
	require.NoError(t, st.AppendUser(ctx, UserRecord{ID: "u-1", Seq: 0, Name: "User1", Email: "user1@example.com"}))

	db := st.(*sqliteStore).db

	var total, failed int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*), SUM(CASE WHEN ok = 0 THEN 1 ELSE 0 END) FROM runs`).Scan(&total, &failed))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, failed)

	var stage, errText string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT stage, err FROM runs WHERE ok = 0`).Scan(&stage, &errText))
	assert.Equal(t, "write", stage)
	assert.Equal(t, "disk full", errText)

	var email string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT email FROM users WHERE id = ?`, "u-1").Scan(&email))
	assert.Equal(t, "user1@example.com", email)

	// Registration IDs are unique per row.
	assert.Error(t, st.AppendUser(ctx, UserRecord{ID: "u-1", Name: "dup", Email: "dup@example.com"}))
}

func TestSQLiteMigrationsAreIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cronex.db")
	for i := 0; i < 2; i++ {
		st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
		require.NoError(t, err)
		require.NoError(t, st.AppendRun(context.Background(), RunRecord{Label: "x", Output: "data.json"}))
		require.NoError(t, st.Close())
	}
}
