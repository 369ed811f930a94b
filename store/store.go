// Package store is the transactional boundary around state.json: every
// mutation runs under the advisory lock and writes the new state
// atomically; the exchange-writing path additionally reconciles orphan
// exchange artifacts first — spec.md §4.6.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/relaykit/relay/exchange"
	"github.com/relaykit/relay/lock"
	"github.com/relaykit/relay/metrics"
	"github.com/relaykit/relay/pathalg"
	relaystate "github.com/relaykit/relay/state"
)

// DefaultLockTimeout is how long a caller waits for the advisory lock
// before giving up with lock.ErrBusy.
const DefaultLockTimeout = 10 * time.Second

// Store owns one relay workspace rooted at Root.
type Store struct {
	Root        string
	LockTimeout time.Duration
	LockOptions lock.Options

	// Metrics records lock wait and transaction outcomes when set; nil
	// is a valid zero value (no metrics recorded), so callers that
	// don't run serve-metrics pay nothing for it.
	Metrics *metrics.Registry
}

// New returns a Store anchored at root, using DefaultLockTimeout and
// the package-default lock staleness/refresh cadence.
func New(root string) *Store {
	return &Store{Root: root, LockTimeout: DefaultLockTimeout}
}

func (s *Store) lockDir() string {
	return filepath.Join(pathalg.RelayRoot(s.Root), "state.json.lock")
}

func (s *Store) acquireLock() (*lock.Lock, error) {
	start := time.Now()
	opts := s.LockOptions
	if s.Metrics != nil {
		opts.OnStaleReclaim = s.Metrics.LockStaleReclaimed.Inc
	}
	l, err := lock.AcquireWithOptions(s.lockDir(), s.LockTimeout, opts)
	if s.Metrics != nil {
		outcome := "ok"
		if err != nil {
			outcome = "busy"
			if errors.Is(err, lock.ErrFatal) {
				outcome = "fatal"
			}
		}
		s.Metrics.ObserveLockWait(time.Since(start), outcome)
	}
	return l, err
}

// Init creates .relay/{exchanges,drafts,tasks} and a default state.json
// if one doesn't already exist. Safe to call repeatedly.
func (s *Store) Init() error {
	l, err := s.acquireLock()
	if err != nil {
		return fmt.Errorf("acquire init lock: %w", err)
	}
	defer l.Release()

	for _, dir := range []string{
		pathalg.ExchangesPath(s.Root),
		filepath.Join(pathalg.RelayRoot(s.Root), pathalg.DraftsDir),
		pathalg.TasksPath(s.Root),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	path := pathalg.StatePath(s.Root)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat state file: %w", err)
	}
	return writeStateFile(path, relaystate.Default())
}

// Read returns the persisted state without taking the lock. Callers
// that need a consistent read-modify-write should use Update instead.
func (s *Store) Read() (relaystate.RelayState, error) {
	return readStateFile(pathalg.StatePath(s.Root))
}

// ReducerFunc computes the next state from the current one, returning
// an error to abort the transaction leaving state.json untouched.
type ReducerFunc func(cur relaystate.RelayState) (relaystate.RelayState, error)

// SideEffectFunc runs after the reducer computes the next state but
// before it's persisted; an error here aborts the whole transaction.
type SideEffectFunc func(next relaystate.RelayState) error

// Update acquires the lock, applies fn to the current state, and
// atomically persists the result.
func (s *Store) Update(fn ReducerFunc) (relaystate.RelayState, error) {
	return s.UpdateWithSideEffect(fn, func(relaystate.RelayState) error { return nil })
}

// UpdateWithSideEffect is Update plus a side effect that runs after the
// reducer and before the state write; if it fails, state.json is left
// unchanged. It does not reconcile orphan exchange artifacts — spec.md
// §4.6 scopes that reconciliation to the exchange-writing transaction
// path, see UpdateWithExchange.
func (s *Store) UpdateWithSideEffect(fn ReducerFunc, effect SideEffectFunc) (next relaystate.RelayState, err error) {
	return s.transact(false, fn, effect)
}

// ExchangeWriteFunc writes the turn's artifact for next and returns its
// path, given the reducer already ran.
type ExchangeWriteFunc func(next relaystate.RelayState) (path string, err error)

// UpdateWithExchange orders writes exchange-before-state (spec.md
// §4.6): reconcile orphans, compute next state, write the exchange
// artifact, then atomically persist state. If the exchange write
// fails, state.json is left unchanged; a reader can never observe a
// state pointing at a missing artifact.
func (s *Store) UpdateWithExchange(fn ReducerFunc, writeExchange ExchangeWriteFunc) (relaystate.RelayState, error) {
	return s.transact(true, fn, func(next relaystate.RelayState) error {
		_, err := writeExchange(next)
		return err
	})
}

// transact is the shared transaction core: acquire the lock, optionally
// reconcile orphan exchanges while holding it, apply fn, run effect,
// and persist atomically.
func (s *Store) transact(reconcile bool, fn ReducerFunc, effect SideEffectFunc) (next relaystate.RelayState, err error) {
	start := time.Now()
	if s.Metrics != nil {
		defer func() {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			s.Metrics.ObserveTransaction("update", outcome, time.Since(start))
		}()
	}

	l, err := s.acquireLock()
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("acquire lock: %w", err)
	}
	defer l.Release()

	if reconcile {
		if err = s.ReconcileOrphans(); err != nil {
			return relaystate.RelayState{}, fmt.Errorf("reconcile orphans: %w", err)
		}
	}

	cur, err := s.Read()
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("read state: %w", err)
	}
	next, err = fn(cur)
	if err != nil {
		return relaystate.RelayState{}, err
	}
	if err = effect(next); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("side effect: %w", err)
	}
	if err = writeStateFile(pathalg.StatePath(s.Root), next); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("write state: %w", err)
	}
	return next, nil
}

// ReconcileOrphans deletes exchange artifacts left behind by a crashed
// or superseded transaction: anything whose task id no longer matches
// the active task, or whose iteration is ahead of the persisted one.
// Callers must already hold the advisory lock — UpdateWithExchange
// does this for you; the runner, which manages its own lock session
// across a ReadState wait, calls this directly.
func (s *Store) ReconcileOrphans() error {
	cur, err := s.Read()
	if err != nil {
		return err
	}
	names, err := exchange.ListFiles(s.Root)
	if err != nil {
		return err
	}
	for _, name := range names {
		parsed, ok := exchange.ParseFilename(name)
		if !ok {
			continue
		}
		orphan := cur.ActiveTaskID == nil || parsed.TaskID != *cur.ActiveTaskID ||
			parsed.Iteration > cur.Iteration
		if !orphan {
			continue
		}
		path := filepath.Join(pathalg.ExchangesPath(s.Root), name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove orphan %s: %w", name, err)
		}
		if s.Metrics != nil {
			s.Metrics.OrphanExchangesRemoved.Inc()
		}
	}
	return nil
}

// AppendTaskLog appends one line to tasks.jsonl under the lock. Used
// by start_task to keep a durable audit trail independent of state.json.
func (s *Store) AppendTaskLog(entry relaystate.TaskLogEntry) error {
	l, err := s.acquireLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer l.Release()

	path := pathalg.TaskLogPath(s.Root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create exchanges dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open task log: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal task log entry: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append task log: %w", err)
	}
	return nil
}

// Persist writes next as the new state.json, atomically. Callers must
// already hold the advisory lock.
func (s *Store) Persist(next relaystate.RelayState) error {
	return writeStateFile(pathalg.StatePath(s.Root), next)
}

// AcquireLock acquires the store's advisory lock directly, for callers
// (the runner) that manage their own lock session across a ReadState
// wait instead of going through Update.
func (s *Store) AcquireLock() (*lock.Lock, error) {
	return s.acquireLock()
}

func readStateFile(path string) (relaystate.RelayState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return relaystate.Default(), nil
		}
		return relaystate.RelayState{}, err
	}
	var s relaystate.RelayState
	if err := json.Unmarshal(data, &s); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("unmarshal state.json: %w", err)
	}
	return s, nil
}

func writeStateFile(path string, s relaystate.RelayState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename state into place: %w", err)
	}
	return nil
}
