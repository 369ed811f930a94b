package reducer

// Prompt and reinforcement text is intentionally short: the kernel
// owns the workflow, not the prose an external template engine would
// render into these files. Callers that want richer onboarding text
// can pre-populate .relay/tasks before the first pulse.

const architectFirstDirectivePrompt = `# DIRECTIVE

## EXECUTE

(describe the work for the engineer to implement)

# VERDICT

[APPROVE | REJECT]
`

const architectReinforcement = "Reminder: write the directive's ## EXECUTE or ## CRITIQUE section and a # VERDICT of APPROVE or REJECT before submitting."

const engineerFirstReportPrompt = `# STATUS

[COMPLETED | FAILED | BLOCKED]

## CHANGES

(describe what changed)

## VERIFICATION

(describe how you verified it)
`

const engineerReinforcement = "Reminder: write # STATUS, ## CHANGES, and a non-trivial ## VERIFICATION before submitting your report."

func taskScaffoldContent(taskID string) string {
	return "---\nid: " + taskID + "\ntitle: Initial setup\n---\n\nDescribe the first unit of work here.\n"
}
