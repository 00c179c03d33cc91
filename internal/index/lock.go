package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a blocked FileLock retries.
const lockRetryDelay = 100 * time.Millisecond

// FileLock is a cross-process exclusive lock on a file, using gofrs/flock.
// A FileLock is not safe for concurrent use; Locks serializes in-process
// callers before they reach it.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates a lock on path. The file is created on first lock.
func NewFileLock(path string) *FileLock {
	return &FileLock{
		path:  path,
		flock: flock.New(path),
	}
}

// Lock blocks until the lock is acquired or ctx is done.
func (l *FileLock) Lock(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	if !acquired {
		return fmt.Errorf("failed to acquire lock %s", l.path)
	}
	l.locked = true
	return nil
}

// TryLock attempts to acquire the lock without blocking.
// Returns true if the lock was acquired, false if it's held by another process.
func (l *FileLock) TryLock() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("failed to create lock directory: %w", err)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	l.locked = acquired
	return acquired, nil
}

// Unlock releases the lock. Unlocking an unlocked FileLock is a no-op.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}

// IsLocked returns true if the lock is currently held.
func (l *FileLock) IsLocked() bool {
	return l.locked
}

// Locks hands out one lock per collection: an in-process slot first, then
// the file lock <dir>/<collection>.lock so separate processes serialize too.
type Locks struct {
	dir string

	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocks creates a lock set whose lock files live in dir.
func NewLocks(dir string) *Locks {
	return &Locks{dir: dir, slots: make(map[string]chan struct{})}
}

func (l *Locks) slot(collection string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[collection]
	if !ok {
		s = make(chan struct{}, 1)
		l.slots[collection] = s
	}
	return s
}

// Acquire blocks until collection is locked or ctx is done. The returned
// release func must be called exactly once.
func (l *Locks) Acquire(ctx context.Context, collection string) (release func(), err error) {
	slot := l.slot(collection)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fl := NewFileLock(filepath.Join(l.dir, collection+".lock"))
	if err := fl.Lock(ctx); err != nil {
		<-slot
		return nil, err
	}

	return func() {
		_ = fl.Unlock()
		<-slot
	}, nil
}
