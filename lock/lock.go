// Package lock implements the relay kernel's advisory, cross-process
// lock (spec.md §4.7). Exclusivity is obtained with os.Mkdir, which
// POSIX and Windows both guarantee is atomic: exactly one caller's
// Mkdir of a given path succeeds when it doesn't already exist.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

// StaleAfter is how long a lock can go unrefreshed before another
// process may reclaim it.
const StaleAfter = 30 * time.Second

// RefreshEvery is how often the owner touches the lock while holding
// it, so long pulses don't look stale to a waiting peer.
const RefreshEvery = 5 * time.Second

// maxBackoff caps the exponential retry backoff.
const maxBackoff = 2 * time.Second

// ErrBusy is returned when acquisition could not complete before the
// caller's timeout elapsed.
var ErrBusy = errors.New("lock busy")

// ErrFatal wraps an unrecoverable acquisition error (permissions,
// read-only filesystem, path too long): retrying will not help.
var ErrFatal = errors.New("lock fatal error")

type owner struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"startedAt"`
}

// Lock is a single acquisition of the advisory lock at dir. It is not
// safe for concurrent use by multiple goroutines; a lock belongs to
// the goroutine that acquired it.
type Lock struct {
	dir          string
	mu           sync.Mutex
	stopCh       chan struct{}
	wg           sync.WaitGroup
	held         bool
	refreshEvery time.Duration
}

// Options overrides the staleness and refresh cadence Acquire uses;
// the zero value of each field falls back to the package default
// (StaleAfter, RefreshEvery), so a caller only needs to set the knobs
// it wants to change.
type Options struct {
	StaleAfter   time.Duration
	RefreshEvery time.Duration

	// OnStaleReclaim, if set, is called each time an acquisition
	// reclaims a lock abandoned by a dead holder — the hook a caller
	// wires a metrics counter through, since the lock package itself
	// has no metrics dependency.
	OnStaleReclaim func()
}

// Acquire attempts to obtain the lock anchored at dir within timeout,
// refreshing it every RefreshEvery while held. The caller must call
// Release exactly once.
func Acquire(dir string, timeout time.Duration) (*Lock, error) {
	return AcquireWithOptions(dir, timeout, Options{})
}

// AcquireWithOptions is Acquire with caller-supplied staleness and
// refresh cadence, e.g. sourced from config.LockConfig.
func AcquireWithOptions(dir string, timeout time.Duration, opts Options) (*Lock, error) {
	staleAfter := opts.StaleAfter
	if staleAfter <= 0 {
		staleAfter = StaleAfter
	}
	refreshEvery := opts.RefreshEvery
	if refreshEvery <= 0 {
		refreshEvery = RefreshEvery
	}

	deadline := time.Now().Add(timeout)
	backoff := 50 * time.Millisecond

	for {
		ok, err := tryAcquire(dir, staleAfter, opts.OnStaleReclaim)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFatal, err)
		}
		if ok {
			l := &Lock{dir: dir, stopCh: make(chan struct{}), held: true, refreshEvery: refreshEvery}
			l.wg.Add(1)
			go l.refreshLoop()
			return l, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrBusy
		}

		jitter := time.Duration(rand.Int63n(int64(backoff)))
		sleep := backoff/2 + jitter
		remaining := time.Until(deadline)
		if sleep > remaining {
			sleep = remaining
		}
		if sleep > 0 {
			time.Sleep(sleep)
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// tryAcquire makes one attempt: create dir; if it already exists,
// check staleness and reclaim if the owner has stopped refreshing.
func tryAcquire(dir string, staleAfter time.Duration, onStaleReclaim func()) (bool, error) {
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		if fatalErr(err) {
			return false, err
		}
		return false, nil
	}

	if err := os.Mkdir(dir, 0o755); err == nil {
		writeOwner(dir)
		return true, nil
	} else if !os.IsExist(err) {
		if fatalErr(err) {
			return false, err
		}
		return false, nil
	}

	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			// Raced with a release; try again on the next loop.
			return false, nil
		}
		return false, nil
	}
	if time.Since(info.ModTime()) <= staleAfter {
		return false, nil
	}

	// Stale: the prior owner stopped refreshing. Reclaim by removing
	// and recreating; if another process wins the recreate race,
	// that's fine — we just failed this attempt.
	if err := os.RemoveAll(dir); err != nil {
		return false, nil
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return false, nil
	}
	writeOwner(dir)
	if onStaleReclaim != nil {
		onStaleReclaim()
	}
	return true, nil
}

// fatalErr reports whether err is unrecoverable: retrying acquisition
// will not help because the filesystem itself refuses the operation
// (read-only, a path component isn't a directory, or the resulting
// path is too long), as distinct from a transient os.ErrExist/race
// that the caller's retry loop is expected to resolve.
func fatalErr(err error) bool {
	switch {
	case errors.Is(err, os.ErrPermission):
		return true
	case errors.Is(err, syscall.EROFS):
		return true
	case errors.Is(err, syscall.ENOTDIR):
		return true
	case errors.Is(err, syscall.ENAMETOOLONG):
		return true
	case errors.Is(err, os.ErrNotExist):
		return false
	default:
		return false
	}
}

func writeOwner(dir string) {
	hostname, _ := os.Hostname()
	o := owner{PID: os.Getpid(), Hostname: hostname, StartedAt: time.Now()}
	data, err := json.Marshal(o)
	if err != nil {
		return
	}
	_ = os.WriteFile(filepath.Join(dir, "owner.json"), data, 0o644)
}

func (l *Lock) refreshLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(l.refreshEvery)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.mu.Lock()
			held := l.held
			l.mu.Unlock()
			if !held {
				return
			}
			now := time.Now()
			_ = os.Chtimes(l.dir, now, now)
		}
	}
}

// Release releases the lock. Safe to call more than once; subsequent
// calls are a no-op.
func (l *Lock) Release() {
	l.mu.Lock()
	if !l.held {
		l.mu.Unlock()
		return
	}
	l.held = false
	l.mu.Unlock()

	close(l.stopCh)
	l.wg.Wait()
	_ = os.RemoveAll(l.dir)
}
