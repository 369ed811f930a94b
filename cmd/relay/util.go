package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/relaykit/relay/pathalg"
)

// discoverRoot implements spec.md §6's ambient root discovery: starting
// at start, walk ancestor directories looking for a .relay/ directory,
// stopping at the filesystem root or the user's home directory
// (whichever is hit first) per §9's Design Notes. If no .relay/ is
// found, start itself is returned unchanged, so a first `start-task`
// in a brand new workspace still has somewhere to initialize into.
func discoverRoot(start string) string {
	home, homeErr := os.UserHomeDir()

	dir := start
	for {
		if info, err := os.Stat(filepath.Join(dir, pathalg.RelayDir)); err == nil && info.IsDir() {
			return dir
		}

		if homeErr == nil && dir == home {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}

// relPathWithinRoot turns a user-supplied --file path (absolute or
// relative to the current directory) into a path relative to root, so
// it can be handed to safeio.ReadSafe.
func relPathWithinRoot(root, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return "", fmt.Errorf("%s is not under workspace root %s: %w", path, root, err)
	}
	return rel, nil
}
