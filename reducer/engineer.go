package reducer

import (
	"fmt"

	"github.com/relaykit/relay/pathalg"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/validate"
)

// Engineer runs the engineer's decision tree (spec.md §4.8) over in.
func Engineer(in FSMInput) Decision {
	if in.State.ActiveTaskID == nil {
		return Decision{
			NewState: in.State,
			Effects: []Effect{ReadState{
				Reason:    "await architect to start a task",
				Predicate: func(s relaystate.RelayState) bool { return s.ActiveTaskID != nil },
			}},
		}
	}

	taskID := *in.State.ActiveTaskID
	found := false
	for _, t := range in.Tasks {
		if t.ID == taskID {
			found = true
			break
		}
	}
	if !found && len(in.Tasks) > 0 {
		// Ad hoc tasks (minted purely via start_task with no backing
		// file) are expected and fine; only an explicitly file-backed
		// backlog that no longer contains the active id is an error.
		return Decision{
			NewState: in.State,
			Effects:  []Effect{Log{Message: fmt.Sprintf("active task %s not found in task index", taskID)}, Exit{Code: 1}},
		}
	}

	if in.LatestDirective == nil {
		return Decision{
			NewState: in.State,
			Effects: []Effect{ReadState{
				Reason: "await architect directive",
				Predicate: func(s relaystate.RelayState) bool {
					return s.LastActionBy != nil && *s.LastActionBy == relaystate.RoleArchitect
				},
			}},
		}
	}

	if in.Submit != nil && in.Submit.TaskID == taskID {
		if verr := validate.Report(in.Submit.Content); verr == nil {
			reportStatus, rerr := reportStatusOf(in.Submit.Content)
			if rerr != nil {
				return Decision{NewState: in.State, Effects: []Effect{Log{Message: rerr.Error()}, Exit{Code: 1}}}
			}
			next, err := Reduce(in.State, relaystate.SubmitReport(taskID, reportStatus, in.Now))
			if err != nil {
				return Decision{NewState: in.State, Effects: []Effect{
					Log{Message: fmt.Sprintf("report rejected: %v", err)},
					Exit{Code: 1},
				}}
			}
			path, perr := pathalg.ExchangePath(in.Root, taskID, titleOf(in.State), next.Iteration, string(relaystate.RoleEngineer))
			if perr != nil {
				return Decision{NewState: in.State, Effects: []Effect{Log{Message: perr.Error()}, Exit{Code: 2}}}
			}
			return Decision{
				NewState: next,
				Effects: []Effect{
					WriteFile{Path: path, Content: in.Submit.Content},
					PersistState{State: next},
					ReadState{
						Reason: "await architect review",
						Predicate: func(s relaystate.RelayState) bool {
							return s.LastActionBy != nil && *s.LastActionBy == relaystate.RoleArchitect
						},
					},
				},
			}
		}
		// Invalid submission: fall through to re-prompt, same as no
		// submission at all.
	}

	draft := pathalg.DraftPath(in.Root, taskID, in.State.Iteration, string(relaystate.RoleEngineer))
	template := engineerFirstReportPrompt
	message := fmt.Sprintf("Write a report for task %s at %s, then run `relay submit-report --task %s --status COMPLETED|FAILED --file %s`.", taskID, draft, taskID, draft)
	if in.State.Iteration > 1 {
		template = engineerReinforcement + "\n\n" + engineerFirstReportPrompt
		message = engineerReinforcement + " " + message
	}
	return Decision{
		NewState: in.State,
		Effects: []Effect{PromptUser{
			Message:    message,
			SubmitCmd:  fmt.Sprintf("relay submit-report --task %s --status COMPLETED|FAILED --file %s", taskID, draft),
			SubmitPath: draft,
			Template:   template,
		}, Exit{Code: 0}},
	}
}

func reportStatusOf(text string) (relaystate.ReportStatus, error) {
	value, err := validate.ReportStatusValue(text)
	if err != nil {
		return "", err
	}
	switch value {
	case "COMPLETED":
		return relaystate.ReportCompleted, nil
	case "FAILED":
		return relaystate.ReportFailed, nil
	case "BLOCKED":
		// BLOCKED validates as text but the typed Action only carries
		// COMPLETED/FAILED (spec.md §3); a blocked report still needs
		// a decision so the architect isn't stuck with neither, so it
		// surfaces as FAILED while the original "BLOCKED" wording
		// survives in the exchange artifact text itself.
		return relaystate.ReportFailed, nil
	default:
		return "", fmt.Errorf("report has unrecognized status %q", value)
	}
}
