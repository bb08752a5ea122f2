// Package workspace discovers the packages of an npm-style workspace by
// resolving the root manifest's workspace globs.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"relkit/internal/manifest"
	"relkit/internal/pathutil"
)

// Package is one workspace member.
type Package struct {
	// Name from the manifest.
	Name string
	// Dir is the package directory relative to the workspace root,
	// slash-normalized. "." for single-package repos.
	Dir string
	// Manifest is the parsed package.json.
	Manifest *manifest.Manifest
}

// Publishable reports whether the package may be published.
func (p *Package) Publishable() bool {
	return !p.Manifest.Private
}

// Workspace is the set of discovered packages.
type Workspace struct {
	// Root is the absolute workspace root.
	Root string
	// RootManifest is the root package.json.
	RootManifest *manifest.Manifest
	// Packages sorted by name.
	Packages []*Package

	byName map[string]*Package
}

// New assembles a workspace from already-loaded packages, sorting them
// by name. Callers that discover packages on disk use Scan instead.
func New(root string, pkgs []*Package) *Workspace {
	ws := &Workspace{Root: root, byName: make(map[string]*Package, len(pkgs))}
	ws.Packages = append(ws.Packages, pkgs...)
	sort.Slice(ws.Packages, func(i, j int) bool {
		return ws.Packages[i].Name < ws.Packages[j].Name
	})
	for _, p := range ws.Packages {
		ws.byName[p.Name] = p
	}
	return ws
}

// Scan discovers the workspace rooted at root. A root manifest without
// a workspaces field yields a single-package workspace rooted at root
// itself.
func Scan(root string) (*Workspace, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}

	rootManifest, err := manifest.LoadDir(root)
	if err != nil {
		return nil, fmt.Errorf("loading root manifest: %w", err)
	}

	ws := &Workspace{
		Root:         root,
		RootManifest: rootManifest,
		byName:       make(map[string]*Package),
	}

	if len(rootManifest.Workspaces) == 0 {
		if rootManifest.Name == "" {
			return nil, fmt.Errorf("root manifest has neither a name nor workspaces")
		}
		pkg := &Package{Name: rootManifest.Name, Dir: ".", Manifest: rootManifest}
		ws.Packages = []*Package{pkg}
		ws.byName[pkg.Name] = pkg
		return ws, nil
	}

	dirs, err := resolveGlobs(root, rootManifest.Workspaces)
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		m, err := manifest.LoadDir(filepath.Join(root, filepath.FromSlash(dir)))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // directory without a manifest is not a package
			}
			return nil, err
		}
		if m.Name == "" {
			return nil, fmt.Errorf("package at %s has no name", dir)
		}
		if existing, ok := ws.byName[m.Name]; ok {
			return nil, fmt.Errorf("duplicate package name %q in %s and %s", m.Name, existing.Dir, dir)
		}
		pkg := &Package{Name: m.Name, Dir: dir, Manifest: m}
		ws.Packages = append(ws.Packages, pkg)
		ws.byName[pkg.Name] = pkg
	}

	if len(ws.Packages) == 0 {
		return nil, fmt.Errorf("workspace globs matched no packages")
	}

	sort.Slice(ws.Packages, func(i, j int) bool {
		return ws.Packages[i].Name < ws.Packages[j].Name
	})
	return ws, nil
}

// resolveGlobs expands workspace patterns against root and returns
// deduplicated, sorted candidate directories (relative, slash form).
func resolveGlobs(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var dirs []string

	for _, pattern := range patterns {
		pattern = pathutil.Normalize(pattern)
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("workspace glob %q: %w", pattern, err)
		}
		for _, m := range matches {
			if strings.Contains(m, "node_modules") {
				continue
			}
			info, err := fs.Stat(fsys, m)
			if err != nil || !info.IsDir() {
				continue
			}
			m = pathutil.Normalize(m)
			if !seen[m] {
				seen[m] = true
				dirs = append(dirs, m)
			}
		}
	}

	sort.Strings(dirs)
	return dirs, nil
}

// Get returns a package by name.
func (w *Workspace) Get(name string) (*Package, bool) {
	p, ok := w.byName[name]
	return p, ok
}

// Names returns the sorted package names.
func (w *Workspace) Names() []string {
	names := make([]string, len(w.Packages))
	for i, p := range w.Packages {
		names[i] = p.Name
	}
	return names
}

// Owner maps a repo-relative file path to the package owning it. The
// deepest matching package directory wins, so nested packages shadow
// their parents. Returns nil when no package claims the path.
func (w *Workspace) Owner(path string) *Package {
	path = pathutil.Normalize(path)
	var best *Package
	for _, p := range w.Packages {
		if !pathutil.Under(p.Dir, path) {
			continue
		}
		if best == nil || len(p.Dir) > len(best.Dir) {
			best = p
		}
	}
	return best
}
