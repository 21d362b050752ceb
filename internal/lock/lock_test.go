package lock

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"testing"

	"github.com/timvw/pane-relay/internal/model"
)

func TestAcquireCreatesMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "inbox.lock")
	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer l.Release()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("marker missing: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("marker size = %d, want 0", info.Size())
	}
	if l.Path() != path {
		t.Errorf("Path() = %q", l.Path())
	}
}

func TestSecondAcquireFailsUntilRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")

	first, err := Acquire(path)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	_, err = Acquire(path)
	if !errors.Is(err, model.ErrProcess) {
		t.Fatalf("expected ErrProcess, got %v", err)
	}
	var e *model.Error
	if !errors.As(err, &e) || e.Errno != syscall.EWOULDBLOCK {
		t.Errorf("expected EWOULDBLOCK errno, got %+v", e)
	}

	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	second, err := Acquire(path)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	second.Release()
}

func TestConcurrentAcquireExactlyOneWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "race.lock")

	const n = 8
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		mu    sync.Mutex
		held  []*Lock
		lost  int
	)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			l, err := Acquire(path)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if !errors.Is(err, model.ErrProcess) {
					t.Errorf("unexpected error kind: %v", err)
				}
				lost++
				return
			}
			held = append(held, l)
		}()
	}
	close(start)
	wg.Wait()

	if len(held) != 1 || lost != n-1 {
		t.Fatalf("winners = %d, losers = %d", len(held), lost)
	}
	held[0].Release()
}

func TestReleaseIsIdempotent(t *testing.T) {
	l, err := Acquire(filepath.Join(t.TempDir(), "a.lock"))
	if err != nil {
		t.Fatal(err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
}

func TestTryWithPropagatesErrorAndReleases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "b.lock")
	sentinel := errors.New("body failed")

	err := TryWith(path, func() error {
		if _, err := Acquire(path); !errors.Is(err, model.ErrProcess) {
			t.Errorf("lock should be held inside body, got %v", err)
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("TryWith returned %v, want the body's error", err)
	}

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("lock not released after body error: %v", err)
	}
	l.Release()
}

func TestTryWithReleasesOnPanic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.lock")

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_ = TryWith(path, func() error { panic("boom") })
	}()

	l, err := Acquire(path)
	if err != nil {
		t.Fatalf("lock not released after panic: %v", err)
	}
	l.Release()
}
