// Package safeio provides traversal-proof, size-bounded file reads
// for the relay kernel. Every read a component does of user-authored
// content (directives, reports, task files) goes through here.
package safeio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxSafeReadBytes is the largest file safeio will return verbatim.
// Anything bigger comes back as the FileTooLarge sentinel rather than
// a truncated read, so callers never accidentally inject a partial
// document into a prompt or validator.
const MaxSafeReadBytes = 50 * 1024

// FileTooLargeSentinel is returned in place of content for oversized
// files. Callers must treat it as "do not use this content", not as
// literal file contents.
const FileTooLargeSentinel = "<<ERROR: FILE_TOO_LARGE>>"

// ErrPathTraversal is returned when the resolved target escapes root.
var ErrPathTraversal = errors.New("path traversal")

// ReadSafe resolves rel relative to root, refusing to read anything
// that lexically or via symlinks escapes root, and returns (nil, nil)
// if the target does not exist. Oversized files come back as
// (FileTooLargeSentinel, nil) rather than an error.
func ReadSafe(root, rel string) (*string, error) {
	target := filepath.Join(root, rel)

	realRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve root: %w", err)
	}

	realTarget, err := filepath.EvalSymlinks(target)
	if err != nil {
		if os.IsNotExist(err) {
			// The file doesn't exist; still check the lexical path
			// so a caller can't probe traversal via a missing file.
			if !withinRoot(realRoot, filepath.Dir(target)) {
				return nil, fmt.Errorf("%w: %s", ErrPathTraversal, rel)
			}
			return nil, nil
		}
		return nil, fmt.Errorf("resolve target: %w", err)
	}

	if !withinRoot(realRoot, realTarget) {
		return nil, fmt.Errorf("%w: %s", ErrPathTraversal, rel)
	}

	info, err := os.Stat(realTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat: %w", err)
	}
	if info.IsDir() {
		return nil, nil
	}

	if info.Size() > MaxSafeReadBytes {
		sentinel := FileTooLargeSentinel
		return &sentinel, nil
	}

	data, err := os.ReadFile(realTarget)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read: %w", err)
	}
	content := string(data)
	return &content, nil
}

// withinRoot reports whether target is root itself or lexically
// contained within it, using a relative-path check so case-folding
// and symlink aliasing on the resolved paths are already accounted
// for by the caller's EvalSymlinks calls.
func withinRoot(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
