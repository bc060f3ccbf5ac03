package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	logx "cronex/pkg/logx"
)

// fileStore appends JSON Lines.
//
// Files:
//   - <prefix>.runs.jsonl
//   - <prefix>.users.jsonl
type fileStore struct {
	log logx.Logger

	mu    sync.Mutex
	runs  *os.File
	users *os.File
}

// filePrefix strips the extension from path: "var/cronex.db" -> "var/cronex".
func filePrefix(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, base)
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	prefix := filePrefix(path)

	rf, err := os.OpenFile(prefix+".runs.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	uf, err := os.OpenFile(prefix+".users.jsonl", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}
	log.Debug("file storage opened", logx.String("prefix", prefix))
	return &fileStore{log: log, runs: rf, users: uf}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.runs != nil {
		errs = append(errs, s.runs.Close())
		s.runs = nil
	}
	if s.users != nil {
		errs = append(errs, s.users.Close())
		s.users = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendRun(ctx context.Context, r RunRecord) error {
	return s.appendLine(ctx, func() *os.File { return s.runs }, r)
}

func (s *fileStore) AppendUser(ctx context.Context, u UserRecord) error {
	return s.appendLine(ctx, func() *os.File { return s.users }, u)
}

func (s *fileStore) appendLine(ctx context.Context, file func() *os.File, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	b = append(b, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	f := file()
	if f == nil {
		return ErrClosed
	}
	// One write per line; O_APPEND keeps lines whole.
	_, err = f.Write(b)
	return err
}
