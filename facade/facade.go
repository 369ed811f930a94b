// Package facade is the relay kernel's Tool Facade (spec.md §4.9): the
// three transactional operations a human or CLI driver calls directly,
// outside the pulse loop — start_task, submit_directive, submit_report.
// submit_directive and submit_report are each a single Store
// transaction; start_task commits its state transaction first and then
// appends to tasks.jsonl under a second lock acquisition. None of them
// interpret Effects.
package facade

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/relaykit/relay/exchange"
	"github.com/relaykit/relay/pathalg"
	"github.com/relaykit/relay/reducer"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/store"
	"github.com/relaykit/relay/validate"
)

// StartTask begins a relay for a task. If id is empty, a fresh opaque
// id is minted with google/uuid (spec.md §9's default); a non-empty id
// is assumed to name an entry in the file-backed backlog and is used
// verbatim, so a stable backlog id survives round-trips through
// start_task rather than being shadowed by a second synthetic one.
func StartTask(s *store.Store, id, title string, now time.Time) (relaystate.RelayState, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if err := pathalg.ValidateTaskID(id); err != nil {
		return relaystate.RelayState{}, err
	}

	var entry relaystate.TaskLogEntry
	next, err := s.UpdateWithSideEffect(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) {
			return reducer.Reduce(cur, relaystate.StartTask(id, title, now))
		},
		func(relaystate.RelayState) error {
			entry = relaystate.TaskLogEntry{TaskID: id, Title: title, StartedAt: now.UnixMilli()}
			return nil
		},
	)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("start task: %w", err)
	}
	if err := s.AppendTaskLog(entry); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("start task: append log: %w", err)
	}
	return next, nil
}

// SubmitDirective validates directive text, applies SUBMIT_DIRECTIVE,
// and persists the exchange artifact before the state that points at
// it — spec.md §4.6's exchange-before-state ordering.
func SubmitDirective(s *store.Store, taskID, content string, now time.Time) (relaystate.RelayState, error) {
	if err := validate.Directive(content); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit directive: %w", err)
	}
	decisionStr, err := validate.DirectiveDecision(content)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit directive: %w", err)
	}

	var artifactIter int
	var title string
	next, err := s.UpdateWithExchange(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) {
			artifactIter = cur.Iteration
			if cur.ActiveTaskTitle != nil {
				title = *cur.ActiveTaskTitle
			}
			return reducer.Reduce(cur, relaystate.SubmitDirective(taskID, relaystate.Decision(decisionStr), now))
		},
		func(relaystate.RelayState) (string, error) {
			return exchange.Write(s.Root, taskID, title, artifactIter, string(relaystate.RoleArchitect), content)
		},
	)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit directive: %w", err)
	}
	return next, nil
}

// SubmitReport validates report text, applies SUBMIT_REPORT, and
// persists the exchange artifact before the state that points at it.
func SubmitReport(s *store.Store, taskID, content string, now time.Time) (relaystate.RelayState, error) {
	if err := validate.Report(content); err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit report: %w", err)
	}
	statusValue, err := validate.ReportStatusValue(content)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit report: %w", err)
	}
	reportStatus, err := toReportStatus(statusValue)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit report: %w", err)
	}

	var title string
	next, err := s.UpdateWithExchange(
		func(cur relaystate.RelayState) (relaystate.RelayState, error) {
			if cur.ActiveTaskTitle != nil {
				title = *cur.ActiveTaskTitle
			}
			return reducer.Reduce(cur, relaystate.SubmitReport(taskID, reportStatus, now))
		},
		func(next relaystate.RelayState) (string, error) {
			return exchange.Write(s.Root, taskID, title, next.Iteration, string(relaystate.RoleEngineer), content)
		},
	)
	if err != nil {
		return relaystate.RelayState{}, fmt.Errorf("submit report: %w", err)
	}
	return next, nil
}

func toReportStatus(value string) (relaystate.ReportStatus, error) {
	switch value {
	case "COMPLETED":
		return relaystate.ReportCompleted, nil
	case "FAILED":
		return relaystate.ReportFailed, nil
	case "BLOCKED":
		return relaystate.ReportFailed, nil
	default:
		return "", fmt.Errorf("unrecognized report status %q", value)
	}
}
