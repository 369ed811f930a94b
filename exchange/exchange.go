// Package exchange persists and looks up the textual artifact of one
// relay turn — spec.md §4.5. Every operation here requires the
// Store's lock to already be held; exchange never does its own
// locking.
package exchange

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/relaykit/relay/pathalg"
	"github.com/relaykit/relay/safeio"
	relaystate "github.com/relaykit/relay/state"
)

// ErrMissing signals state implies an artifact should exist on disk
// but it does not — a corrupted workspace, not a normal "not found".
var ErrMissing = errors.New("exchange artifact missing")

// Write atomically persists content as the exchange artifact for
// (taskID, iter, role): write to "<path>.tmp", then rename over the
// final path. Renaming over an existing file makes writes idempotent
// by path — submitting identical content twice is a no-op on disk.
func Write(root, taskID, title string, iter int, role string, content string) (string, error) {
	path, err := pathalg.ExchangePath(root, taskID, title, iter, role)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create exchanges dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write tmp exchange: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("rename exchange into place: %w", err)
	}
	return path, nil
}

// LatestContent returns the contents of the artifact addressed by
// (state.ActiveTaskID, state.Iteration, state.LastActionBy), for
// states where one should exist. Returns (nil, nil) for states with
// no artifact yet (idle, planning with no directive written).
func LatestContent(root string, s relaystate.RelayState) (*string, error) {
	switch s.Status {
	case relaystate.StatusWaitingForEngineer, relaystate.StatusWaitingForArchitect, relaystate.StatusCompleted:
	default:
		return nil, nil
	}
	if s.ActiveTaskID == nil || s.LastActionBy == nil {
		return nil, nil
	}

	name := pathalg.ExchangeFilename(*s.ActiveTaskID, titleOrEmpty(s), s.Iteration, string(*s.LastActionBy))
	rel := filepath.Join(pathalg.RelayDir, pathalg.ExchangesDir, name)
	content, err := safeio.ReadSafe(root, rel)
	if err != nil {
		return nil, fmt.Errorf("read latest exchange: %w", err)
	}
	if content == nil {
		return nil, fmt.Errorf("%w: %s", ErrMissing, name)
	}
	return content, nil
}

func titleOrEmpty(s relaystate.RelayState) string {
	if s.ActiveTaskTitle == nil {
		return ""
	}
	return *s.ActiveTaskTitle
}

var filenamePattern = regexp.MustCompile(`^(.+)-(\d{3})-(architect|engineer)-(.*)\.md$`)

// Parsed is a decoded exchange filename.
type Parsed struct {
	TaskID    string
	Iteration int
	Role      string
	Slug      string
}

// ParseFilename decodes an exchange basename back into its
// (task_id, iteration, role, slug) components. Returns false for
// names that don't match the exchange grammar (e.g. tasks.jsonl).
func ParseFilename(name string) (Parsed, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, false
	}
	iter, err := strconv.Atoi(m[2])
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{TaskID: m[1], Iteration: iter, Role: m[3], Slug: m[4]}, true
}

// ListFiles returns every exchange-grammar basename currently present
// in <root>/.relay/exchanges, skipping tasks.jsonl and any .tmp
// leftovers.
func ListFiles(root string) ([]string, error) {
	dir := pathalg.ExchangesPath(root)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read exchanges dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := ParseFilename(e.Name()); ok {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
