// Package workspace locates the enclosing Bazel workspace root.
package workspace

import (
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/bazelide/internal/foundation/errors"
)

// Marker files that identify a Bazel workspace root.
var rootMarkers = []string{"WORKSPACE", "WORKSPACE.bazel", "MODULE.bazel"}

// FindRoot walks up from start until it finds a directory containing a
// workspace marker file. Returns a ConfigError when no root exists.
func FindRoot(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryWorkspace, "failed to resolve start directory").Build()
	}

	for {
		for _, marker := range rootMarkers {
			info, err := os.Stat(filepath.Join(dir, marker))
			if err == nil && !info.IsDir() {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ferrors.ConfigError("not in a Bazel workspace").
				WithContext("start", start).
				Build()
		}
		dir = parent
	}
}

// FindRootFromCwd is FindRoot anchored at the current working directory.
func FindRootFromCwd() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", ferrors.WrapError(err, ferrors.CategoryWorkspace, "failed to determine working directory").Build()
	}
	return FindRoot(cwd)
}
