// Package runner is the relay kernel's pulse runner (spec.md §4.8): one
// invocation assembles an FSMInput, hands it to the architect or
// engineer decision tree, and interprets the resulting effects in
// order. A ReadState effect blocks the invocation on a file watch
// rather than ending it, so a single `relay pulse` can ride out one or
// more wait-for-peer cycles before exiting.
package runner

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/relaykit/relay/exchange"
	"github.com/relaykit/relay/lock"
	"github.com/relaykit/relay/metrics"
	"github.com/relaykit/relay/pathalg"
	"github.com/relaykit/relay/reducer"
	"github.com/relaykit/relay/safeio"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/store"
	"github.com/relaykit/relay/tasks"
	"github.com/relaykit/relay/validate"
)

// pollInterval is the default read_state poll cadence. The poll ticker
// runs alongside the fsnotify watch, so it also covers setups where
// fsnotify can't be set up or doesn't deliver events (no inotify
// available, watched path on a network filesystem).
const pollInterval = 1 * time.Second

// Config controls one Pulse invocation.
type Config struct {
	Root   string
	Role   relaystate.Role
	Now    func() time.Time
	Submit *reducer.SubmitIntent
	Logger *slog.Logger

	// LockTimeout, StaleAfter, and RefreshEvery override the advisory
	// lock's defaults (see the lock package); zero means "use the
	// package default". Typically sourced from config.LockConfig.
	LockTimeout  time.Duration
	StaleAfter   time.Duration
	RefreshEvery time.Duration
	PollInterval time.Duration

	// MaxWaits bounds how many ReadState cycles a single invocation
	// will ride out before giving up and exiting 2; zero means
	// "use the package default" (see maxWaitsDefault).
	MaxWaits int

	// Metrics records lock, transaction, and pulse outcomes when set;
	// nil means no metrics are recorded.
	Metrics *metrics.Registry
}

const maxWaitsDefault = 1000

// Pulse runs one invocation of the architect or engineer decision loop
// and returns the process exit code spec.md §6 defines: 0 success/
// waiting, 1 a validation or transition error, 2 an infrastructure
// fault.
func Pulse(cfg Config) (code int) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	maxWaits := cfg.MaxWaits
	if maxWaits <= 0 {
		maxWaits = maxWaitsDefault
	}

	start := time.Now()
	if cfg.Metrics != nil {
		defer func() { cfg.Metrics.ObservePulse(string(cfg.Role), code, time.Since(start)) }()
	}

	s := store.New(cfg.Root)
	if cfg.LockTimeout > 0 {
		s.LockTimeout = cfg.LockTimeout
	}
	s.LockOptions = lock.Options{StaleAfter: cfg.StaleAfter, RefreshEvery: cfg.RefreshEvery}
	s.Metrics = cfg.Metrics
	if err := s.Init(); err != nil {
		logger.Error("init workspace", "error", err)
		return 2
	}

	l, err := s.AcquireLock()
	if err != nil {
		logger.Error("acquire lock", "error", err)
		return 2
	}
	locked := true
	defer func() {
		if locked {
			l.Release()
		}
	}()

	submit := cfg.Submit
	for wait := 0; wait < maxWaits; wait++ {
		if err := s.ReconcileOrphans(); err != nil {
			logger.Error("reconcile orphans", "error", err)
			return 2
		}

		cur, err := s.Read()
		if err != nil {
			logger.Error("read state", "error", err)
			return 2
		}

		taskList, err := tasks.Load(cfg.Root, logger)
		if err != nil {
			logger.Error("load tasks", "error", err)
			return 2
		}

		approved, err := approvedTaskIDs(cfg.Root)
		if err != nil {
			logger.Error("scan approved tasks", "error", err)
			return 2
		}

		var latestDirective, latestReport *string
		if content, _ := exchange.LatestContent(cfg.Root, cur); content != nil {
			if cur.LastActionBy != nil {
				switch *cur.LastActionBy {
				case relaystate.RoleArchitect:
					if validate.Directive(*content) == nil {
						latestDirective = content
					}
				case relaystate.RoleEngineer:
					if validate.Report(*content) == nil {
						latestReport = content
					}
				}
			}
		}

		in := reducer.FSMInput{
			Root:            cfg.Root,
			Now:             now(),
			State:           cur,
			Tasks:           taskList,
			ApprovedTaskIDs: approved,
			LatestDirective: latestDirective,
			LatestReport:    latestReport,
			Submit:          submit,
		}
		submit = nil // a submission is consumed by at most one FSM call

		var decision reducer.Decision
		switch cfg.Role {
		case relaystate.RoleArchitect:
			decision = reducer.Architect(in)
		case relaystate.RoleEngineer:
			decision = reducer.Engineer(in)
		default:
			logger.Error("unknown role", "role", cfg.Role)
			return 2
		}

		pollEvery := cfg.PollInterval
		if pollEvery <= 0 {
			pollEvery = pollInterval
		}
		code, waiting, err := interpret(s, &l, &locked, decision.Effects, logger, pollEvery)
		if err != nil {
			logger.Error("interpret effects", "error", err)
			return 2
		}
		if !waiting {
			return code
		}
		// waiting: the ReadState effect already blocked until its
		// predicate held; loop around and re-run the decision tree
		// against fresh state.
	}

	logger.Error("pulse exceeded max wait cycles", "max", maxWaits)
	return 2
}

// interpret runs effects in order. It returns (exitCode, waiting, err):
// waiting is true when a ReadState effect was satisfied and the caller
// should loop around and recompute the decision; exitCode is only
// meaningful when waiting is false.
func interpret(s *store.Store, l **lock.Lock, locked *bool, effects []reducer.Effect, logger *slog.Logger, pollEvery time.Duration) (int, bool, error) {
	for _, eff := range effects {
		switch e := eff.(type) {
		case reducer.Log:
			logger.Info(e.Message)

		case reducer.WriteFile:
			if err := atomicWrite(e.Path, e.Content); err != nil {
				return 0, false, fmt.Errorf("write %s: %w", e.Path, err)
			}

		case reducer.PersistState:
			if err := s.Persist(e.State); err != nil {
				return 0, false, fmt.Errorf("persist state: %w", err)
			}

		case reducer.CreateTaskScaffold:
			if err := createScaffold(s.Root, e.TaskID); err != nil {
				return 0, false, fmt.Errorf("scaffold task: %w", err)
			}

		case reducer.PromptUser:
			if e.SubmitPath != "" {
				if err := ensureDraft(e.SubmitPath, e.Template); err != nil {
					return 0, false, fmt.Errorf("prepare draft %s: %w", e.SubmitPath, err)
				}
			}
			logger.Info(e.Message, "submit", e.SubmitCmd)

		case reducer.ReadState:
			(*l).Release()
			*locked = false
			logger.Info("waiting", "reason", e.Reason)
			if err := waitForState(s, e.Predicate, pollEvery); err != nil {
				logger.Warn("wait for state", "error", err)
			}
			reacquired, err := s.AcquireLock()
			if err != nil {
				return 0, false, fmt.Errorf("reacquire lock: %w", err)
			}
			*l = reacquired
			*locked = true
			return 0, true, nil

		case reducer.Exit:
			return e.Code, false, nil

		default:
			return 0, false, fmt.Errorf("unknown effect %T", eff)
		}
	}
	return 0, false, nil
}

func atomicWrite(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ensureDraft(path, template string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return atomicWrite(path, template)
}

func createScaffold(root, taskID string) error {
	path := filepath.Join(pathalg.TasksPath(root), taskID+".md")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	content := fmt.Sprintf("---\nid: %s\ntitle: %s\n---\n\nDescribe the task here.\n", taskID, taskID)
	return atomicWrite(path, content)
}

// waitForState blocks until s.Read() satisfies predicate, using
// fsnotify on the state file's directory with a poll-interval
// fallback ticker so a missed or unsupported filesystem event can't
// wedge the pulse forever.
func waitForState(s *store.Store, predicate func(relaystate.RelayState) bool, pollEvery time.Duration) error {
	if cur, err := s.Read(); err == nil && predicate(cur) {
		return nil
	}

	dir := filepath.Dir(pathalg.StatePath(s.Root))
	watcher, werr := fsnotify.NewWatcher()
	var events chan fsnotify.Event
	if werr == nil {
		if err := watcher.Add(dir); err == nil {
			events = watcher.Events
		}
		defer watcher.Close()
	}

	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-events:
			cur, err := s.Read()
			if err == nil && predicate(cur) {
				return nil
			}
		case <-ticker.C:
			cur, err := s.Read()
			if err == nil && predicate(cur) {
				return nil
			}
		}
	}
}

// approvedTaskIDs scans every architect directive artifact on disk and
// collects the task ids with an APPROVE verdict, so the architect FSM
// can skip tasks already completed in an earlier relay round without
// re-deriving that fact from state.json, which only remembers the
// currently active task.
func approvedTaskIDs(root string) (map[string]bool, error) {
	names, err := exchange.ListFiles(root)
	if err != nil {
		return nil, err
	}
	out := map[string]bool{}
	for _, name := range names {
		parsed, ok := exchange.ParseFilename(name)
		if !ok || parsed.Role != string(relaystate.RoleArchitect) {
			continue
		}
		rel := filepath.Join(pathalg.RelayDir, pathalg.ExchangesDir, name)
		content, err := safeio.ReadSafe(root, rel)
		if err != nil || content == nil {
			continue
		}
		if validate.Directive(*content) != nil {
			continue
		}
		decision, err := validate.DirectiveDecision(*content)
		if err != nil {
			continue
		}
		if decision == string(relaystate.DecisionApprove) {
			out[parsed.TaskID] = true
		}
	}
	return out, nil
}
