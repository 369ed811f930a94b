// Package reducer implements the pure (state, action) -> state state
// machine from spec.md §4.4, plus the role-specific decision trees
// from §4.8 that turn an FSMInput into a (state, []Effect) pair for
// the pulse runner to interpret.
package reducer

import (
	"errors"
	"fmt"

	relaystate "github.com/relaykit/relay/state"
)

func millis(a relaystate.Action) int64 { return a.Timestamp.UnixMilli() }

// ErrInvalidTransition is returned when an action is not valid from
// the current state. The reducer performs no mutation on this path.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrTaskMismatch is returned when an action's TaskID does not match
// state.ActiveTaskID.
var ErrTaskMismatch = errors.New("task mismatch")

// Reduce applies action to state and returns the resulting state.
// On failure the returned state is the zero value; callers must
// check the error and leave the prior state untouched.
func Reduce(s relaystate.RelayState, a relaystate.Action) (relaystate.RelayState, error) {
	switch a.Type {
	case relaystate.ActionStartTask:
		return reduceStartTask(s, a)
	case relaystate.ActionSubmitDirective:
		return reduceSubmitDirective(s, a)
	case relaystate.ActionSubmitReport:
		return reduceSubmitReport(s, a)
	default:
		return relaystate.RelayState{}, fmt.Errorf("%w: unknown action type %q", ErrInvalidTransition, a.Type)
	}
}

func reduceStartTask(s relaystate.RelayState, a relaystate.Action) (relaystate.RelayState, error) {
	switch s.Status {
	case relaystate.StatusIdle, relaystate.StatusCompleted:
		taskID := a.TaskID
		title := a.Title
		role := relaystate.RoleArchitect
		return relaystate.RelayState{
			Status:          relaystate.StatusPlanning,
			ActiveTaskID:    &taskID,
			ActiveTaskTitle: &title,
			Iteration:       1,
			LastActionBy:    &role,
			UpdatedAt:       millis(a),
		}, nil
	default:
		return relaystate.RelayState{}, fmt.Errorf("%w: START_TASK from status %q (task already active)", ErrInvalidTransition, s.Status)
	}
}

func reduceSubmitDirective(s relaystate.RelayState, a relaystate.Action) (relaystate.RelayState, error) {
	if err := requireActiveTask(s, a.TaskID); err != nil {
		return relaystate.RelayState{}, err
	}

	switch s.Status {
	case relaystate.StatusPlanning, relaystate.StatusWaitingForArchitect:
		role := relaystate.RoleArchitect
		next := s.Clone()
		next.LastActionBy = &role
		next.UpdatedAt = millis(a)
		switch a.Decision {
		case relaystate.DecisionApprove:
			next.Status = relaystate.StatusCompleted
		case relaystate.DecisionReject:
			next.Status = relaystate.StatusWaitingForEngineer
		default:
			return relaystate.RelayState{}, fmt.Errorf("%w: unknown decision %q", ErrInvalidTransition, a.Decision)
		}
		return next, nil
	default:
		return relaystate.RelayState{}, fmt.Errorf("%w: SUBMIT_DIRECTIVE from status %q", ErrInvalidTransition, s.Status)
	}
}

func reduceSubmitReport(s relaystate.RelayState, a relaystate.Action) (relaystate.RelayState, error) {
	if err := requireActiveTask(s, a.TaskID); err != nil {
		return relaystate.RelayState{}, err
	}

	switch s.Status {
	case relaystate.StatusWaitingForEngineer:
		role := relaystate.RoleEngineer
		next := s.Clone()
		next.Status = relaystate.StatusWaitingForArchitect
		next.Iteration = s.Iteration + 1
		next.LastActionBy = &role
		next.UpdatedAt = millis(a)
		return next, nil
	default:
		return relaystate.RelayState{}, fmt.Errorf("%w: SUBMIT_REPORT from status %q", ErrInvalidTransition, s.Status)
	}
}

func requireActiveTask(s relaystate.RelayState, taskID string) error {
	if s.ActiveTaskID == nil || *s.ActiveTaskID != taskID {
		return fmt.Errorf("%w: action task %q != active task", ErrTaskMismatch, taskID)
	}
	return nil
}

