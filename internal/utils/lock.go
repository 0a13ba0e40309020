package utils

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	homedir "github.com/mitchellh/go-homedir"
)

const (
	lockFileSuffix = ".lock"
	lockRetry      = 100 * time.Millisecond
)

// ErrLockTimeout is returned by Acquire when another writer keeps the lock
// past the wait budget.
var ErrLockTimeout = errors.New("timed out waiting for the database writer lock")

// WriterLock serialises brickscope commands that write the same SQLite
// file. It is an flock on "<db>.lock" next to the database.
type WriterLock struct {
	f    *flock.Flock
	path string
}

// NewWriterLock returns the (not yet held) writer lock of dbPath.
func NewWriterLock(dbPath string) (*WriterLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("resolve db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, err
	}
	p := absPath + lockFileSuffix
	return &WriterLock{f: flock.New(p), path: p}, nil
}

// Path returns the lock file path.
func (l *WriterLock) Path() string { return l.path }

// Held reports whether this process holds the lock.
func (l *WriterLock) Held() bool { return l.f.Locked() }

// Acquire takes the lock. If another process holds it, Acquire logs once
// and polls until the lock frees up, ctx is done or wait elapses. A
// non-positive wait is bounded by ctx only.
func (l *WriterLock) Acquire(ctx context.Context, wait time.Duration) error {
	ok, err := l.f.TryLock()
	if err != nil {
		return fmt.Errorf("lock %s: %w", l.path, err)
	}
	if ok {
		return nil
	}

	Log.Warnf("Another brickscope process holds %s, waiting for it to finish", l.path)
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	start := time.Now()
	ok, err = l.f.TryLockContext(ctx, lockRetry)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w after %s (%s)", ErrLockTimeout, time.Since(start).Round(time.Millisecond), l.path)
	case err != nil:
		return fmt.Errorf("lock %s: %w", l.path, err)
	case !ok:
		return fmt.Errorf("lock %s: not acquired", l.path)
	}
	Log.Debugf("Acquired %s after %s", l.path, time.Since(start).Round(time.Millisecond))
	return nil
}

// Release drops the lock. Releasing a lock that is not held is a no-op.
func (l *WriterLock) Release() error {
	if !l.f.Locked() {
		return nil
	}
	if err := l.f.Unlock(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}

// GetAbsDBPath resolves the database path. An empty path is the default
// database under ~/.config/brickscope, and a leading ~ is expanded.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".config", "brickscope", "brickscope.sqlite"), nil
	}
	expanded, err := homedir.Expand(dbPath)
	if err != nil {
		return "", err
	}
	return filepath.Abs(expanded)
}
