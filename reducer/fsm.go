package reducer

import (
	"time"

	relaystate "github.com/relaykit/relay/state"
)

// FSMInput is the immutable snapshot a pulse assembles before calling
// a role FSM: current state, the read-only task index, the latest
// directive/report content (already validated; nil means "absent or
// invalid"), and — when this invocation is itself a submission — the
// content being submitted.
type FSMInput struct {
	Root string
	Now  time.Time

	State relaystate.RelayState
	Tasks []relaystate.Task

	// ApprovedTaskIDs holds every task id the exchange log shows an
	// APPROVE directive for, so the architect FSM can skip tasks
	// already completed in an earlier relay without re-deriving that
	// from state (which only remembers the *current* task).
	ApprovedTaskIDs map[string]bool

	LatestDirective *string
	LatestReport    *string

	// Submit carries the content this invocation wants to persist,
	// if any. A nil Submit means "just check status / prompt".
	Submit *SubmitIntent
}

// SubmitIntent is the content a pulse is trying to persist this turn.
type SubmitIntent struct {
	TaskID  string
	Content string
}

// Decision is what a role FSM returns: the new state (equal to the
// input state if nothing changed) and the ordered effects to run.
type Decision struct {
	NewState relaystate.RelayState
	Effects  []Effect
}

// selectNextTask implements spec.md §4.8's architect task-selection
// rule: stick with the current task if it isn't approved yet;
// otherwise advance to the next task in list order after it; if there
// is no current task, start from the first unapproved one.
func selectNextTask(in FSMInput) *relaystate.Task {
	if in.State.ActiveTaskID != nil && in.State.Status != relaystate.StatusCompleted {
		for i := range in.Tasks {
			if in.Tasks[i].ID == *in.State.ActiveTaskID {
				return &in.Tasks[i]
			}
		}
		// Active task vanished from the index; fall through to
		// picking a fresh one rather than getting stuck.
	}

	startAt := 0
	if in.State.ActiveTaskID != nil {
		for i := range in.Tasks {
			if in.Tasks[i].ID == *in.State.ActiveTaskID {
				startAt = i + 1
				break
			}
		}
	}

	n := len(in.Tasks)
	for i := 0; i < n; i++ {
		idx := (startAt + i) % n
		t := in.Tasks[idx]
		if !in.ApprovedTaskIDs[t.ID] {
			return &in.Tasks[idx]
		}
	}
	return nil
}

func taskTitle(tasks []relaystate.Task, id string) string {
	for _, t := range tasks {
		if t.ID == id {
			return t.Title
		}
	}
	return ""
}
