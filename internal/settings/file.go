package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/sirupsen/logrus"
)

const lockRetryDelay = 20 * time.Millisecond

// File stores each key as <dir>/<key>.json. Writes go through a temporary
// file and a rename so a crash never leaves a half written blob, and an
// advisory lock per key keeps other processes sharing the directory out.
type File struct {
	dir string
	mu  sync.Mutex
}

// OpenFile creates dir if needed and returns a backend rooted there
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("settings directory must not be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}
	logrus.WithField("dir", dir).Info("Using file settings store")
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) lock(key string) *flock.Flock {
	return flock.New(filepath.Join(f.dir, "."+key+".lock"))
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return fmt.Errorf("invalid settings key %q", key)
	}
	return nil
}

func (f *File) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fl := f.lock(key)
	locked, err := fl.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if !locked {
		return nil, fmt.Errorf("failed to lock %s", key)
	}
	defer func() { _ = fl.Unlock() }()

	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

func (f *File) Set(ctx context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	fl := f.lock(key)
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to lock %s: %w", key, err)
	}
	if !locked {
		return fmt.Errorf("failed to lock %s", key)
	}
	defer func() { _ = fl.Unlock() }()

	tmp, err := os.CreateTemp(f.dir, "."+key+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }() // no-op after a successful rename

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		return fmt.Errorf("failed to replace %s: %w", key, err)
	}
	return syncDir(f.dir)
}

// syncDir makes the rename itself durable
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("failed to open settings directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("failed to sync settings directory: %w", err)
	}
	return nil
}

func (f *File) Close() error { return nil }
