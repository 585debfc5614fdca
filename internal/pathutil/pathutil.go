// Package pathutil computes the display-relative path of a file within
// a watched root.
package pathutil

import (
	"os"
	"path/filepath"
	"strings"
)

// Relative returns abs expressed relative to base. It first tries
// canonicalizing both paths and stripping the base prefix; if either
// canonicalization fails (the file may already be gone), it falls back
// to a lexical prefix strip. If abs is not under base by either
// strategy, abs is returned unchanged. The result is a display and
// matching key, not a path meant to be reopened.
func Relative(abs, base string) string {
	if realAbs, err := filepath.EvalSymlinks(abs); err == nil {
		if realBase, err := filepath.EvalSymlinks(base); err == nil {
			if rel, ok := stripPrefix(realAbs, realBase); ok {
				return rel
			}
		}
	}

	if rel, ok := stripPrefix(abs, base); ok {
		return rel
	}

	return abs
}

func stripPrefix(path, base string) (string, bool) {
	if path == base {
		return filepath.Base(path), true
	}

	prefix := base
	if !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}

	if !strings.HasPrefix(path, prefix) {
		return "", false
	}

	rel := strings.TrimPrefix(path, prefix)
	rel = strings.TrimLeft(rel, string(os.PathSeparator))
	return rel, true
}
