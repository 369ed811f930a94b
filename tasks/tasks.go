// Package tasks loads the read-only task backlog the architect's
// decision tree selects from — spec.md §4.9a. A task is a Markdown
// file under .relay/tasks with id:/title: front matter; the kernel
// never writes into this directory.
package tasks

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/relaykit/relay/pathalg"
	"github.com/relaykit/relay/safeio"
	relaystate "github.com/relaykit/relay/state"
	"github.com/relaykit/relay/validate"
)

// Load globs every *.md file under <root>/.relay/tasks, at any nesting
// depth (e.g. an epic's tasks grouped under a subdirectory), validates
// its front matter, and returns the backlog sorted by id. A file that
// fails front-matter validation is skipped and logged, not fatal to
// the whole load: one malformed task shouldn't block the architect
// from working the rest of the backlog. logger may be nil, in which
// case slog.Default() is used.
func Load(root string, logger *slog.Logger) ([]relaystate.Task, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := pathalg.TasksPath(root)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat tasks dir: %w", err)
	}

	names, err := doublestar.Glob(os.DirFS(dir), "**/*.md")
	if err != nil {
		return nil, fmt.Errorf("glob tasks dir: %w", err)
	}

	var out []relaystate.Task
	for _, name := range names {
		path := filepath.Join(dir, filepath.FromSlash(name))
		rel := filepath.Join(pathalg.RelayDir, pathalg.TasksDir, filepath.FromSlash(name))
		content, err := safeio.ReadSafe(root, rel)
		if err != nil || content == nil || *content == safeio.FileTooLargeSentinel {
			logger.Warn("skipping unreadable task file", "path", path, "error", err)
			continue
		}
		id, title, err := validate.TaskFrontMatter(*content)
		if err != nil {
			logger.Warn("skipping malformed task file", "path", path, "error", err)
			continue
		}
		if err := pathalg.ValidateTaskID(id); err != nil {
			logger.Warn("skipping task file with invalid id", "path", path, "error", err)
			continue
		}
		out = append(out, relaystate.Task{
			ID:      id,
			Slug:    pathalg.Slugify(title),
			Title:   title,
			Content: *content,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
