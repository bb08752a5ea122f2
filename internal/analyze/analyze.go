// Package analyze walks the git history since each package's last
// release and attributes conventional commits to workspace packages.
package analyze

import (
	"fmt"
	"sort"

	"github.com/bmatcuk/doublestar/v4"

	"relkit/internal/commit"
	"relkit/internal/config"
	"relkit/internal/gitio"
	"relkit/internal/semver"
	"relkit/internal/workspace"
)

// Entry pairs a git commit with its parsed conventional form.
type Entry struct {
	Git    gitio.Commit
	Parsed commit.Commit
}

// PackageHistory is everything the planner needs to know about one
// package's pending changes.
type PackageHistory struct {
	Package *workspace.Package
	// Commits touching this package since its last release, newest
	// first.
	Commits []Entry
	// LastTag is the release tag the history starts after. Empty for
	// initial releases.
	LastTag string
	// LastVersion is the version parsed from LastTag.
	LastVersion semver.Version
	// Initial marks packages that have never been released.
	Initial bool
}

// Analysis is the full commit analysis for a workspace.
type Analysis struct {
	// Histories per package, keyed by name.
	Histories map[string]*PackageHistory
	// Commits is the union of commits under analysis, newest first.
	// Lint runs over this set; it includes commits owned by no
	// package.
	Commits []Entry
	// Head is the commit hash the analysis was taken at.
	Head string
}

// Repo is the git surface the analyzer needs. *gitio.Repository
// satisfies it.
type Repo interface {
	Head() (string, error)
	Tags() ([]gitio.Tag, error)
	CommitsSince(sinceHash string) ([]gitio.Commit, error)
}

// Analyzer attributes commits to packages.
type Analyzer struct {
	repo Repo
	ws   *workspace.Workspace
	cfg  *config.Config
}

// New creates an analyzer.
func New(repo Repo, ws *workspace.Workspace, cfg *config.Config) *Analyzer {
	return &Analyzer{repo: repo, ws: ws, cfg: cfg}
}

// Run performs the analysis.
func (a *Analyzer) Run() (*Analysis, error) {
	head, err := a.repo.Head()
	if err != nil {
		return nil, err
	}

	tags, err := a.repo.Tags()
	if err != nil {
		return nil, err
	}

	matcher, err := a.cfg.TagMatcher()
	if err != nil {
		return nil, err
	}
	latest := latestReleaseTags(tags, matcher)

	analysis := &Analysis{
		Histories: make(map[string]*PackageHistory, len(a.ws.Packages)),
		Head:      head,
	}

	// Each distinct since-hash costs one history walk; packages
	// sharing a release point share the walk.
	walks := make(map[string][]gitio.Commit)
	walkSince := func(hash string) ([]gitio.Commit, error) {
		if cached, ok := walks[hash]; ok {
			return cached, nil
		}
		commits, err := a.repo.CommitsSince(hash)
		if err != nil {
			return nil, err
		}
		walks[hash] = commits
		return commits, nil
	}

	seen := make(map[string]bool)
	for _, pkg := range a.ws.Packages {
		hist := &PackageHistory{Package: pkg}

		var sinceHash string
		key := pkg.Name
		if a.cfg.Mode == config.ModeFixed {
			key = "" // fixed mode shares one tag series
		}
		if ref, ok := latest[key]; ok {
			hist.LastTag = ref.tag.Name
			hist.LastVersion = ref.version
			sinceHash = ref.tag.Hash
		} else {
			hist.Initial = true
		}

		commits, err := walkSince(sinceHash)
		if err != nil {
			return nil, fmt.Errorf("walking history for %s: %w", pkg.Name, err)
		}

		for _, gc := range commits {
			if !a.owns(pkg, gc.Files) {
				continue
			}
			entry := newEntry(gc)
			hist.Commits = append(hist.Commits, entry)
			if !seen[gc.Hash] {
				seen[gc.Hash] = true
				analysis.Commits = append(analysis.Commits, entry)
			}
		}

		analysis.Histories[pkg.Name] = hist
	}

	// Commits owned by no package still matter to lint: take them
	// from the shortest walk performed.
	if shortest := shortestWalk(walks); shortest != nil {
		for _, gc := range shortest {
			if !seen[gc.Hash] {
				seen[gc.Hash] = true
				analysis.Commits = append(analysis.Commits, newEntry(gc))
			}
		}
	}

	sort.SliceStable(analysis.Commits, func(i, j int) bool {
		return analysis.Commits[i].Git.When.After(analysis.Commits[j].Git.When)
	})

	return analysis, nil
}

// newEntry parses a git commit message into its conventional form. A
// multi-parent commit is a merge regardless of what its message says,
// so the git-side flag wins over the message prefix.
func newEntry(gc gitio.Commit) Entry {
	entry := Entry{Git: gc, Parsed: commit.Parse(gc.Message)}
	entry.Parsed.Hash = gc.Hash
	if gc.Merge {
		entry.Parsed.Merge = true
	}
	return entry
}

// owns reports whether any changed file belongs to pkg, after the
// configured ignore globs strip paths that never map to a package.
func (a *Analyzer) owns(pkg *workspace.Package, files []string) bool {
	for _, f := range files {
		if a.ignored(f) {
			continue
		}
		if owner := a.ws.Owner(f); owner != nil && owner.Name == pkg.Name {
			return true
		}
	}
	return false
}

func (a *Analyzer) ignored(path string) bool {
	for _, pattern := range a.cfg.Ignore {
		if ok, err := doublestar.Match(pattern, path); err == nil && ok {
			return true
		}
	}
	return false
}

// releaseRef is a release tag resolved to a version.
type releaseRef struct {
	tag     gitio.Tag
	version semver.Version
}

// latestReleaseTags picks the highest release tag per package name.
// Fixed-mode formats without {name} key under "".
func latestReleaseTags(tags []gitio.Tag, matcher *config.TagMatcher) map[string]releaseRef {
	latest := make(map[string]releaseRef)
	for _, tag := range tags {
		name, verStr, ok := matcher.Match(tag.Name)
		if !ok {
			continue
		}
		version, err := semver.Parse(verStr)
		if err != nil {
			continue
		}
		if cur, ok := latest[name]; !ok || semver.Less(cur.version, version) {
			latest[name] = releaseRef{tag: tag, version: version}
		}
	}
	return latest
}

// shortestWalk returns the commit list of the most recent release
// point (the shortest history walked), or nil when no walks happened.
func shortestWalk(walks map[string][]gitio.Commit) []gitio.Commit {
	var shortest []gitio.Commit
	found := false
	for _, commits := range walks {
		if !found || len(commits) < len(shortest) {
			shortest = commits
			found = true
		}
	}
	return shortest
}
