// Package ignore matches relative paths against glob exclusion patterns.
package ignore

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Matches reports whether relativePath should be excluded from sync
// because it hits one of patterns. Iteration order does not affect the
// result; the first match short-circuits. A malformed pattern is
// treated as non-matching rather than fatal.
func Matches(relativePath string, patterns []string) bool {
	relativePath = filepath.ToSlash(relativePath)

	for _, pattern := range patterns {
		if matchesOne(relativePath, pattern) {
			return true
		}
	}
	return false
}

func matchesOne(relativePath, pattern string) bool {
	pattern = filepath.ToSlash(pattern)

	if ok, _ := doublestar.Match(pattern, relativePath); ok {
		return true
	}

	// Bare patterns like "*.log" are anchored to the root by doublestar;
	// treat them as matching anywhere in the tree unless already rooted.
	if !strings.HasPrefix(pattern, "**/") && !strings.HasPrefix(pattern, "/") {
		if ok, _ := doublestar.Match("**/"+pattern, relativePath); ok {
			return true
		}
	}

	// Directory patterns (trailing slash) match anything beneath them.
	if dir, ok := strings.CutSuffix(pattern, "/"); ok {
		if strings.HasPrefix(relativePath, dir+"/") {
			return true
		}
		if !strings.HasPrefix(dir, "**/") && !strings.HasPrefix(dir, "/") {
			if strings.HasPrefix(relativePath, "**/"+dir+"/") {
				return true
			}
			// A directory pattern also matches the path directly under
			// any ancestor, e.g. "node_modules/" matching "a/node_modules/b.js".
			if containsSegment(relativePath, dir) {
				return true
			}
		}
	}

	// Root-anchored patterns (leading slash) match against the tree root,
	// unlike a bare pattern which doublestar already anchors by default.
	if root, ok := strings.CutPrefix(pattern, "/"); ok {
		if ok, _ := doublestar.Match(root, relativePath); ok {
			return true
		}
	}

	return false
}

// containsSegment reports whether dir appears as a path segment prefix
// anywhere within relativePath, e.g. dir="node_modules" matches
// "a/node_modules/b.js".
func containsSegment(relativePath, dir string) bool {
	segments := strings.Split(relativePath, "/")
	for i := range segments {
		if segments[i] == dir && i < len(segments)-1 {
			return true
		}
	}
	return false
}
