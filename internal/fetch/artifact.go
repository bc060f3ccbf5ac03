package fetch

import (
	"fmt"
	"os"
	"path/filepath"
)

// writeAtomic replaces path with data. Readers see either the previous file
// or the new one, never a partial write.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrWrite, dir, err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp: %v", ErrWrite, err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmp)
		}
	}()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: write temp: %v", ErrWrite, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: sync temp: %v", ErrWrite, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close temp: %v", ErrWrite, err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fmt.Errorf("%w: chmod temp: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("%w: replace %s: %v", ErrWrite, path, err)
	}
	return nil
}
