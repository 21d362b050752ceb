// Package lock provides a non-blocking advisory file lock.
//
// The lock excludes only processes that take the same lock on the same
// path. It does not stop anyone from writing the guarded file directly.
package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/timvw/pane-relay/internal/model"
)

// Lock is a held exclusive lock on a marker file.
type Lock struct {
	path string

	mu   sync.Mutex
	file *os.File
}

// Acquire takes an exclusive lock on path without waiting. The marker file
// and its parent directories are created if needed. If another holder is
// active, Acquire fails at once with a KindProcess error carrying
// EWOULDBLOCK; retrying is up to the caller.
func Acquire(path string) (*Lock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, model.Wrap(model.KindIO, "create lock dir", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, model.Wrap(model.KindIO, "open lock file", err)
	}

	if err := flock(f); err != nil {
		_ = f.Close()
		e := &model.Error{Kind: model.KindProcess, Op: "acquire lock", Msg: path, Err: err}
		if errors.Is(err, unix.EWOULDBLOCK) {
			e.Msg = "file is locked: " + path
		}
		var errno syscall.Errno
		if errors.As(err, &errno) {
			e.Errno = errno
		}
		return nil, e
	}
	return &Lock{path: path, file: f}, nil
}

// flock retries on EINTR only; contention is returned to the caller.
func flock(f *os.File) error {
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err != unix.EINTR {
			return err
		}
	}
}

// Path returns the locked path.
func (l *Lock) Path() string {
	return l.path
}

// Release unlocks and closes the marker file. Calling it again is a no-op.
// The marker file is left in place.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	f := l.file
	l.file = nil

	unlockErr := unix.Flock(int(f.Fd()), unix.LOCK_UN)
	closeErr := f.Close()
	if unlockErr != nil {
		return model.Wrap(model.KindProcess, "release lock", unlockErr)
	}
	if closeErr != nil {
		return model.Wrap(model.KindIO, "release lock", closeErr)
	}
	return nil
}

// TryWith holds the lock at path while fn runs. The lock is released on
// every exit path, panics included, and fn's error is returned unchanged.
func TryWith(path string, fn func() error) error {
	l, err := Acquire(path)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}
