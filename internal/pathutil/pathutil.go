// Package pathutil provides slash-normalized path helpers for mapping
// repository paths to workspace packages.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Kind classifies a path string.
type Kind int

const (
	// KindRelative is a path relative to some root.
	KindRelative Kind = iota
	// KindAbsolute is a rooted path.
	KindAbsolute
)

// KindOf returns the kind of a path. Windows drive and UNC paths count
// as absolute.
func KindOf(p string) Kind {
	if filepath.IsAbs(p) || strings.HasPrefix(p, "\\\\") {
		return KindAbsolute
	}
	// filepath.IsAbs is platform-dependent; a drive letter on a
	// non-Windows host should still classify as absolute.
	if len(p) >= 3 && p[1] == ':' && (p[2] == '/' || p[2] == '\\') {
		return KindAbsolute
	}
	return KindRelative
}

// Normalize converts a path to forward slashes and cleans it. The empty
// string normalizes to ".". Backslashes are treated as separators
// regardless of host platform, since manifests written on Windows can
// carry them.
func Normalize(p string) string {
	if p == "" {
		return "."
	}
	return path.Clean(strings.ReplaceAll(p, "\\", "/"))
}

// Rel returns the slash-normalized path of target relative to root, or
// ("", false) when target does not live under root.
func Rel(root, target string) (string, bool) {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Under reports whether the slash-normalized path p is dir itself or a
// descendant of dir. dir "." matches everything.
func Under(dir, p string) bool {
	dir = Normalize(dir)
	p = Normalize(p)
	if dir == "." {
		return true
	}
	return p == dir || strings.HasPrefix(p, dir+"/")
}
