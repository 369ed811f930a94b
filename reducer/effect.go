package reducer

import relaystate "github.com/relaykit/relay/state"

// Effect is a tagged-variant instruction emitted by a role FSM for
// the pulse runner to interpret, in order, per spec.md §9's design
// note: "never reorder". Each concrete type below implements Effect
// via an unexported marker method so only this package can produce
// new variants.
type Effect interface {
	isEffect()
}

// PersistState asks the runner to atomically write S as the new
// RelayState.
type PersistState struct {
	State relaystate.RelayState
}

// WriteFile asks the runner to atomically write Content to Path
// (tmp + rename), used for exchange artifacts.
type WriteFile struct {
	Path    string
	Content string
}

// PromptUser asks the runner to ensure SubmitPath exists (pre-filled
// with Template if missing) and print Message to the user. It does
// not block.
type PromptUser struct {
	Message    string
	SubmitCmd  string
	SubmitPath string
	Template   string
}

// ReadState asks the runner to release the lock, watch state.json
// until Predicate(state) is true, then reacquire the lock and
// continue the loop.
type ReadState struct {
	Predicate func(relaystate.RelayState) bool
	Reason    string
}

// Log asks the runner to emit a log line.
type Log struct {
	Message string
}

// Exit asks the runner to release the lock and return Code.
type Exit struct {
	Code int
}

// CreateTaskScaffold asks the runner to create a starter task file
// for TaskID under .relay/tasks/.
type CreateTaskScaffold struct {
	TaskID string
}

func (PersistState) isEffect()       {}
func (WriteFile) isEffect()           {}
func (PromptUser) isEffect()          {}
func (ReadState) isEffect()           {}
func (Log) isEffect()                 {}
func (Exit) isEffect()                {}
func (CreateTaskScaffold) isEffect()  {}
