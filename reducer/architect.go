package reducer

import (
	"fmt"

	"github.com/relaykit/relay/pathalg"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/validate"
)

// Architect runs the architect's decision tree (spec.md §4.8) over in
// and returns the resulting state and the ordered effects the runner
// must interpret.
func Architect(in FSMInput) Decision {
	if len(in.Tasks) == 0 {
		return Decision{
			NewState: in.State,
			Effects: []Effect{
				CreateTaskScaffold{TaskID: "001-setup"},
				PromptUser{
					Message:    "No tasks found. A starter task was scaffolded at .relay/tasks/001-setup.md — edit it, then run `relay start-task` to begin.",
					SubmitCmd:  "relay start-task --title <title>",
					SubmitPath: pathalg.TasksPath(in.Root) + "/001-setup.md",
				},
				Exit{Code: 0},
			},
		}
	}

	target := selectNextTask(in)
	if target == nil {
		return Decision{
			NewState: in.State,
			Effects:  []Effect{Log{Message: "All tasks approved!"}, Exit{Code: 0}},
		}
	}

	cur := in.State
	var effects []Effect

	if cur.ActiveTaskID == nil || *cur.ActiveTaskID != target.ID {
		// Starting a task is the Tool Facade's job (start_task), not
		// the pulse's: it is its own idempotent, audited transaction
		// (it appends to tasks.jsonl). The pulse only tells the human
		// which task is next.
		return Decision{
			NewState: in.State,
			Effects: []Effect{
				Log{Message: fmt.Sprintf("next task: %s (%s)", target.ID, target.Title)},
				PromptUser{
					Message:   fmt.Sprintf("Run `relay start-task --id %s --title %q` to begin.", target.ID, target.Title),
					SubmitCmd: fmt.Sprintf("relay start-task --id %s --title %q", target.ID, target.Title),
				},
				Exit{Code: 0},
			},
		}
	}

	if cur.Status == relaystate.StatusWaitingForEngineer {
		// Not the architect's turn; wait for the engineer's report.
		return Decision{
			NewState: cur,
			Effects: append(effects, ReadState{
				Reason:    "await engineer report",
				Predicate: func(s relaystate.RelayState) bool { return s.Status != relaystate.StatusWaitingForEngineer },
			}),
		}
	}

	// Reviewing a submitted report vs. writing the first directive
	// for this task both funnel through the same submit-directive
	// logic; the only difference is which section (EXECUTE vs
	// CRITIQUE) the human wrote, which the validator doesn't care
	// about (either satisfies it).
	taskID := *cur.ActiveTaskID
	if in.Submit != nil && in.Submit.TaskID == taskID {
		if verr := validate.Directive(in.Submit.Content); verr == nil {
			decisionStr, _ := validate.DirectiveDecision(in.Submit.Content)
			next, err := Reduce(cur, relaystate.SubmitDirective(taskID, relaystate.Decision(decisionStr), in.Now))
			if err != nil {
				return Decision{NewState: in.State, Effects: []Effect{
					Log{Message: fmt.Sprintf("directive rejected: %v", err)},
					Exit{Code: 1},
				}}
			}
			path, perr := pathalg.ExchangePath(in.Root, taskID, titleOf(cur), cur.Iteration, string(relaystate.RoleArchitect))
			if perr != nil {
				return Decision{NewState: in.State, Effects: []Effect{Log{Message: perr.Error()}, Exit{Code: 2}}}
			}
			effects = append(effects, WriteFile{Path: path, Content: in.Submit.Content}, PersistState{State: next})
			if next.Status == relaystate.StatusCompleted {
				return Decision{NewState: next, Effects: append(effects, Log{Message: "Task approved!"}, Exit{Code: 0})}
			}
			return Decision{NewState: next, Effects: append(effects, ReadState{
				Reason:    "await engineer report",
				Predicate: func(s relaystate.RelayState) bool { return s.Status != relaystate.StatusWaitingForEngineer },
			})}
		}
		// Invalid content falls through to the prompt branch below,
		// same as "no submission this pulse".
	}

	draft := pathalg.DraftPath(in.Root, taskID, cur.Iteration, string(relaystate.RoleArchitect))
	template := architectFirstDirectivePrompt
	message := fmt.Sprintf("Write a directive for task %s at %s, then run `relay submit-directive --task %s --decision APPROVE|REJECT --file %s`.", taskID, draft, taskID, draft)
	if cur.Iteration > 1 {
		template = architectReinforcement + "\n\n" + architectFirstDirectivePrompt
		message = architectReinforcement + " " + message
	}
	return Decision{
		NewState: cur,
		Effects: append(effects, PromptUser{
			Message:    message,
			SubmitCmd:  fmt.Sprintf("relay submit-directive --task %s --decision APPROVE|REJECT --file %s", taskID, draft),
			SubmitPath: draft,
			Template:   template,
		}, Exit{Code: 0}),
	}
}

func titleOf(s relaystate.RelayState) string {
	if s.ActiveTaskTitle == nil {
		return ""
	}
	return *s.ActiveTaskTitle
}
