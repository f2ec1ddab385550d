package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockSuffix     = ".lock"
	lockRetryDelay = 50 * time.Millisecond
)

var ErrStateLocked = errors.New("state: locked by another run")

// Store is a file-backed MonitorState. The file is the only memory between runs.
type Store struct {
	path  string
	flock *flock.Flock
}

func NewStore(path string) *Store {
	return &Store{
		path:  path,
		flock: flock.New(path + lockSuffix),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the persisted record. Missing, unreadable or corrupt files are a
// fresh start, never an error.
func (s *Store) Load() MonitorState {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("state file missing, starting fresh", "path", s.path)
		} else {
			slog.Error("state file unreadable, starting fresh", "path", s.path, "error", err)
		}
		return MonitorState{}
	}

	st, err := Parse(bytes.NewReader(data))
	if err != nil {
		slog.Warn("state file corrupt, starting fresh", "path", s.path, "error", err)
		return MonitorState{}
	}

	return st
}

// Save replaces the file content in one step: temp file in the same
// directory, fsync, rename.
func (s *Store) Save(st MonitorState) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("state: create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(Format(st)); err != nil {
		return fmt.Errorf("state: write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("state: sync %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("state: close %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("state: chmod %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("state: rename to %s: %w", s.path, err)
	}

	success = true
	return nil
}

// Lock takes an advisory lock next to the state file, retrying until ctx is done.
func (s *Store) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("state: create dir: %w", err)
	}

	locked, err := s.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return ErrStateLocked
		}
		return fmt.Errorf("state: lock %s: %w", s.flock.Path(), err)
	}
	if !locked {
		return ErrStateLocked
	}

	return nil
}

// Unlock releases the lock if this process holds it. The lock file stays on
// disk; removing it would let a waiter lock an orphaned inode.
func (s *Store) Unlock() error {
	if !s.flock.Locked() {
		return nil
	}

	if err := s.flock.Unlock(); err != nil {
		return fmt.Errorf("state: unlock %s: %w", s.flock.Path(), err)
	}
	return nil
}
