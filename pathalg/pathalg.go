// Package pathalg is the pure path layer for the relay kernel: task id
// validation, slugification, and the mapping from (root, task, iter,
// role) to an exchange file path. Nothing in this package touches
// disk.
package pathalg

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
)

// MaxTaskIDLen is the longest accepted task identifier.
const MaxTaskIDLen = 64

// MaxSlugLen is how much of a slugified title survives into a
// filename, leaving room for the task id, iteration, and role.
const MaxSlugLen = 172

// maxBasenameBytes is the POSIX-ish limit a generated filename must
// respect regardless of platform.
const maxBasenameBytes = 255

// maxPathBytes mirrors the platform path length ceiling: Windows is
// far stricter than everything else.
var maxPathBytes = func() int {
	if runtime.GOOS == "windows" {
		return 259
	}
	return 4095
}()

// RelayDir is the name of the per-project coordination directory.
const RelayDir = ".relay"

// ExchangesDir is the subdirectory exchange artifacts live in.
const ExchangesDir = "exchanges"

// StateFile is the persisted RelayState document's filename.
const StateFile = "state.json"

// TaskLogFile is the append-only audit log of started tasks.
const TaskLogFile = "tasks.jsonl"

// DraftsDir holds the human-editable scratch files a prompt_user
// effect points at. Drafts are not exchange artifacts: they are not
// owned by the Store, may be edited freely, and are never consulted
// by the reducer directly — only their content, once handed to
// submit_directive/submit_report, becomes an exchange artifact.
const DraftsDir = "drafts"

// TasksDir holds the read-only task definition files the Task
// Provider globs.
const TasksDir = "tasks"

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ErrInvalidTaskID is returned when a task id fails the id grammar.
var ErrInvalidTaskID = errors.New("invalid task id")

// ErrPathTooLong is returned when a generated path would exceed the
// platform's maximum path length.
var ErrPathTooLong = errors.New("path exceeds platform maximum")

// ValidateTaskID rejects empty ids, ids over MaxTaskIDLen, and ids
// containing anything other than letters, digits, underscore, and
// hyphen — in particular it rejects path separators and "..".
func ValidateTaskID(id string) error {
	if id == "" || len(id) > MaxTaskIDLen {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	if !taskIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	return nil
}

var (
	nonWordPattern      = regexp.MustCompile(`[^a-z0-9\s_-]+`)
	separatorRunPattern = regexp.MustCompile(`[\s_-]+`)
	trimHyphenPattern   = regexp.MustCompile(`^-+|-+$`)
)

// Slugify lowercases a title, strips non-word characters, collapses
// runs of whitespace, underscores, and hyphens into single hyphens, and
// trims leading/trailing hyphens. It does not truncate — callers that
// need a filename-safe slug should use ExchangeFilename, which
// truncates to MaxSlugLen.
func Slugify(title string) string {
	lower := strings.ToLower(title)
	stripped := nonWordPattern.ReplaceAllString(lower, "")
	slug := separatorRunPattern.ReplaceAllString(stripped, "-")
	return trimHyphenPattern.ReplaceAllString(slug, "")
}

// ExchangeFilename returns the basename for one turn's artifact:
// {task_id}-{iter:03}-{role}-{slug[:MaxSlugLen]}.md, truncated so the
// whole basename fits under maxBasenameBytes.
func ExchangeFilename(taskID, title string, iter int, role string) string {
	slug := Slugify(title)
	if len(slug) > MaxSlugLen {
		slug = strings.TrimRight(slug[:MaxSlugLen], "-")
	}
	name := fmt.Sprintf("%s-%03d-%s-%s.md", taskID, iter, role, slug)
	if len(name) <= maxBasenameBytes {
		return name
	}
	// Shave characters off the slug until the basename fits; the
	// task id, iteration, and role are never truncated since they
	// carry the identity the reducer depends on.
	overflow := len(name) - maxBasenameBytes
	if overflow >= len(slug) {
		slug = ""
	} else {
		slug = strings.TrimRight(slug[:len(slug)-overflow], "-")
	}
	return fmt.Sprintf("%s-%03d-%s-%s.md", taskID, iter, role, slug)
}

// ExchangePath joins root, the .relay/exchanges directory, and a
// generated basename, failing if the result would exceed the
// platform's maximum path length.
func ExchangePath(root, taskID, title string, iter int, role string) (string, error) {
	name := ExchangeFilename(taskID, title, iter, role)
	full := filepath.Join(root, RelayDir, ExchangesDir, name)
	if len(full) > maxPathBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrPathTooLong, len(full))
	}
	return full, nil
}

// StatePath returns <root>/.relay/state.json.
func StatePath(root string) string {
	return filepath.Join(root, RelayDir, StateFile)
}

// ExchangesPath returns <root>/.relay/exchanges.
func ExchangesPath(root string) string {
	return filepath.Join(root, RelayDir, ExchangesDir)
}

// TaskLogPath returns <root>/.relay/exchanges/tasks.jsonl.
func TaskLogPath(root string) string {
	return filepath.Join(ExchangesPath(root), TaskLogFile)
}

// RelayRoot returns <root>/.relay.
func RelayRoot(root string) string {
	return filepath.Join(root, RelayDir)
}

// DraftPath returns the scratch file a prompt_user effect pre-fills
// and waits for the human to edit before submitting:
// <root>/.relay/drafts/{task_id}-{iter:03}-{role}.md.
func DraftPath(root, taskID string, iter int, role string) string {
	name := fmt.Sprintf("%s-%03d-%s.md", taskID, iter, role)
	return filepath.Join(root, RelayDir, DraftsDir, name)
}

// TasksPath returns <root>/.relay/tasks.
func TasksPath(root string) string {
	return filepath.Join(root, RelayDir, TasksDir)
}
