// Package state defines the persisted RelayState document, the
// read-only Task type, and the ephemeral Action values that drive the
// reducer. Nothing here touches disk; persistence lives in store and
// exchange.
package state

import "time"

// Status is the coordination status of a feature's relay.
type Status string

const (
	StatusIdle                Status = "idle"
	StatusPlanning            Status = "planning"
	StatusWaitingForEngineer  Status = "waiting_for_engineer"
	StatusWaitingForArchitect Status = "waiting_for_architect"
	StatusCompleted           Status = "completed"
)

// Role identifies which side of the relay produced an artifact.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleEngineer  Role = "engineer"
)

// Decision is the verdict an architect directive carries.
type Decision string

const (
	DecisionApprove Decision = "APPROVE"
	DecisionReject  Decision = "REJECT"
)

// ReportStatus is the outcome an engineer report carries.
type ReportStatus string

const (
	ReportCompleted ReportStatus = "COMPLETED"
	ReportFailed    ReportStatus = "FAILED"
)

// RelayState is the single persisted document per feature. Field tags
// match the stable wire schema in spec.md §6 exactly; implementations
// downstream of this package must not rename these keys.
type RelayState struct {
	Status          Status  `json:"status"`
	ActiveTaskID    *string `json:"activeTaskId"`
	ActiveTaskTitle *string `json:"activeTaskTitle"`
	Iteration       int     `json:"iteration"`
	LastActionBy    *Role   `json:"lastActionBy"`
	UpdatedAt       int64   `json:"updatedAt"` // ms since epoch
}

// Default returns the state a fresh .relay/state.json is initialized
// with.
func Default() RelayState {
	return RelayState{
		Status:    StatusIdle,
		Iteration: 0,
	}
}

// Clone returns a deep copy so callers can mutate freely without
// aliasing the original.
func (s RelayState) Clone() RelayState {
	out := s
	if s.ActiveTaskID != nil {
		id := *s.ActiveTaskID
		out.ActiveTaskID = &id
	}
	if s.ActiveTaskTitle != nil {
		title := *s.ActiveTaskTitle
		out.ActiveTaskTitle = &title
	}
	if s.LastActionBy != nil {
		role := *s.LastActionBy
		out.LastActionBy = &role
	}
	return out
}

// Task is the external, read-only unit of work the kernel coordinates
// around. The kernel never writes a Task; it is loaded from disk by
// the tasks package and otherwise treated as opaque.
type Task struct {
	ID      string
	Slug    string
	Title   string
	Content string
}

// TaskLogEntry is one line of the append-only tasks.jsonl audit log.
type TaskLogEntry struct {
	TaskID    string `json:"taskId"`
	Title     string `json:"title"`
	StartedAt int64  `json:"startedAt"`
}

// ActionType discriminates the Action union.
type ActionType string

const (
	ActionStartTask       ActionType = "START_TASK"
	ActionSubmitDirective ActionType = "SUBMIT_DIRECTIVE"
	ActionSubmitReport    ActionType = "SUBMIT_REPORT"
)

// Action is the ephemeral input to the reducer. Exactly one of the
// role-specific fields is meaningful, selected by Type.
type Action struct {
	Type      ActionType
	TaskID    string
	Title     string // ActionStartTask
	Decision  Decision
	Report    ReportStatus
	Timestamp time.Time
}

// StartTask builds a START_TASK action.
func StartTask(taskID, title string, ts time.Time) Action {
	return Action{Type: ActionStartTask, TaskID: taskID, Title: title, Timestamp: ts}
}

// SubmitDirective builds a SUBMIT_DIRECTIVE action.
func SubmitDirective(taskID string, decision Decision, ts time.Time) Action {
	return Action{Type: ActionSubmitDirective, TaskID: taskID, Decision: decision, Timestamp: ts}
}

// SubmitReport builds a SUBMIT_REPORT action.
func SubmitReport(taskID string, report ReportStatus, ts time.Time) Action {
	return Action{Type: ActionSubmitReport, TaskID: taskID, Report: report, Timestamp: ts}
}
