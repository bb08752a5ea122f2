// Package plan turns a commit analysis into a concrete release plan:
// direct version bumps, dependency cascades, and the manifest edits
// they imply.
package plan

import (
	"fmt"

	"relkit/internal/analyze"
	"relkit/internal/commit"
	"relkit/internal/config"
	"relkit/internal/depgraph"
	"relkit/internal/manifest"
	"relkit/internal/semver"
	"relkit/internal/workspace"
)

// Reason records one commit that contributed to a release.
type Reason struct {
	Commit   string       `json:"commit"`
	Type     string       `json:"type"`
	Summary  string       `json:"summary"`
	Level    semver.Level `json:"-"`
	LevelStr string       `json:"level"`
	Breaking bool         `json:"breaking,omitempty"`
}

// RangeEdit is one internal dependency range update a release applies.
type RangeEdit struct {
	Dep      string `json:"dep"`
	Group    string `json:"group"`
	OldRange string `json:"oldRange"`
	NewRange string `json:"newRange"`
}

// Release is one package's planned release.
type Release struct {
	Name       string         `json:"package"`
	OldVersion semver.Version `json:"-"`
	NewVersion semver.Version `json:"-"`
	Old        string         `json:"oldVersion"`
	New        string         `json:"newVersion"`
	Level      semver.Level   `json:"-"`
	LevelStr   string         `json:"level"`
	// Initial marks a package's first release; it ships at its
	// manifest version unchanged.
	Initial bool `json:"initial,omitempty"`
	// Cascade marks a release forced only by releasing dependencies.
	Cascade bool `json:"cascade,omitempty"`
	// CascadeOf lists the releasing dependencies that forced or
	// accompanied this release.
	CascadeOf []string `json:"cascadeOf,omitempty"`
	// Publish is false for private packages.
	Publish bool `json:"publish"`
	// Tag is the release tag to create.
	Tag        string      `json:"tag"`
	Reasons    []Reason    `json:"reasons,omitempty"`
	RangeEdits []RangeEdit `json:"rangeEdits,omitempty"`

	pkg *workspace.Package
}

// Package returns the workspace package the release belongs to.
func (r *Release) Package() *workspace.Package { return r.pkg }

// Skip records a package excluded from the plan and why.
type Skip struct {
	Package string `json:"package"`
	Reason  string `json:"reason"`
}

// Plan is the full release forecast, releases in dependency order.
type Plan struct {
	Mode     string     `json:"mode"`
	Head     string     `json:"head"`
	Releases []*Release `json:"releases"`
	Skipped  []Skip     `json:"skipped,omitempty"`
	// Fixed is the shared next version in fixed mode.
	Fixed string `json:"fixedVersion,omitempty"`
}

// Release returns the planned release for a package, or nil.
func (p *Plan) Release(name string) *Release {
	for _, r := range p.Releases {
		if r.Name == name {
			return r
		}
	}
	return nil
}

// Empty reports whether the plan releases nothing.
func (p *Plan) Empty() bool { return len(p.Releases) == 0 }

// FingerprintLookup resolves the content fingerprint recorded at a
// package's last release. The history store satisfies it.
type FingerprintLookup interface {
	Fingerprint(pkg, tag string) (string, bool)
}

// Planner computes release plans.
type Planner struct {
	ws    *workspace.Workspace
	graph *depgraph.Graph
	cfg   *config.Config

	// lookup and current are only consulted when skipUnchanged is
	// configured.
	lookup  FingerprintLookup
	current func(p *workspace.Package) (string, error)
}

// New creates a planner over an analyzed workspace.
func New(ws *workspace.Workspace, graph *depgraph.Graph, cfg *config.Config) *Planner {
	p := &Planner{ws: ws, graph: graph, cfg: cfg}
	p.current = func(pkg *workspace.Package) (string, error) {
		return pkg.Fingerprint(ws.Root)
	}
	return p
}

// WithFingerprints wires the last-release fingerprint store used by the
// skipUnchanged policy.
func (p *Planner) WithFingerprints(lookup FingerprintLookup) *Planner {
	p.lookup = lookup
	return p
}

// Run computes the plan for an analysis.
func (p *Planner) Run(analysis *analyze.Analysis) (*Plan, error) {
	policy, err := p.cfg.BumpPolicy()
	if err != nil {
		return nil, fmt.Errorf("bump policy: %w", err)
	}

	order, err := p.graph.ReleaseOrder()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Mode: p.cfg.Mode, Head: analysis.Head}
	releasing := make(map[string]*Release)

	// Pass one: direct bumps from each package's own commits.
	for _, name := range order {
		pkg, _ := p.ws.Get(name)
		hist := analysis.Histories[name]
		if pkg == nil || hist == nil {
			continue
		}

		level, reasons := directBump(hist, policy)
		if level == semver.LevelNone && !hist.Initial {
			continue
		}
		if hist.Initial && len(hist.Commits) == 0 {
			// Nothing committed for a never-released package: leave
			// it alone until it has history.
			continue
		}

		if skip, reason := p.unchanged(pkg, hist); skip {
			plan.Skipped = append(plan.Skipped, Skip{Package: name, Reason: reason})
			continue
		}

		old, err := semver.Parse(pkg.Manifest.Version)
		if err != nil {
			return nil, fmt.Errorf("package %s: manifest version %q: %w", name, pkg.Manifest.Version, err)
		}

		rel := &Release{
			Name:       name,
			OldVersion: old,
			Level:      level,
			Initial:    hist.Initial,
			Publish:    pkg.Publishable(),
			Reasons:    reasons,
			pkg:        pkg,
		}
		if hist.Initial {
			// First releases ship the manifest version as declared.
			rel.NewVersion = old
		} else {
			rel.NewVersion = old.Bump(level)
		}
		releasing[name] = rel
	}

	// Pass two: cascades over the reverse graph, dependencies first,
	// so transitive cascades settle in one sweep.
	cascadeLevel := p.cfg.CascadeBump()
	for _, name := range order {
		pkg, _ := p.ws.Get(name)
		if pkg == nil {
			continue
		}

		var releasedDeps []string
		for _, dep := range p.graph.DependenciesOf(name) {
			if releasing[dep] != nil {
				releasedDeps = append(releasedDeps, dep)
			}
		}
		if len(releasedDeps) == 0 {
			continue
		}

		rel := releasing[name]
		if rel == nil {
			old, err := semver.Parse(pkg.Manifest.Version)
			if err != nil {
				return nil, fmt.Errorf("package %s: manifest version %q: %w", name, pkg.Manifest.Version, err)
			}
			rel = &Release{
				Name:       name,
				OldVersion: old,
				NewVersion: old.Bump(cascadeLevel),
				Level:      cascadeLevel,
				Cascade:    true,
				Publish:    pkg.Publishable(),
				pkg:        pkg,
			}
			releasing[name] = rel
		} else if cascadeLevel > rel.Level && !rel.Initial {
			// A cascade never downgrades a direct bump, but it may
			// raise one when the configured cascade level is higher.
			rel.Level = cascadeLevel
			rel.NewVersion = rel.OldVersion.Bump(cascadeLevel)
		}
		rel.CascadeOf = releasedDeps
	}

	if len(releasing) == 0 {
		return plan, nil
	}

	if p.cfg.Mode == config.ModeFixed {
		applyFixed(releasing)
	}

	// Assemble in release order with tags and range edits.
	for _, name := range order {
		rel := releasing[name]
		if rel == nil {
			continue
		}
		rel.Old = rel.OldVersion.String()
		rel.New = rel.NewVersion.String()
		rel.LevelStr = rel.Level.String()
		rel.Tag = p.cfg.FormatTag(rel.Name, rel.New)
		rel.RangeEdits = p.rangeEdits(rel, releasing)
		plan.Releases = append(plan.Releases, rel)
	}

	if p.cfg.Mode == config.ModeFixed && len(plan.Releases) > 0 {
		plan.Fixed = plan.Releases[0].New
	}
	return plan, nil
}

// directBump folds a package's commits into its bump level and the
// reasons behind it.
func directBump(hist *analyze.PackageHistory, policy commit.BumpPolicy) (semver.Level, []Reason) {
	level := semver.LevelNone
	var reasons []Reason
	for _, e := range hist.Commits {
		b := e.Parsed.Bump(policy)
		if b == semver.LevelNone {
			continue
		}
		level = semver.MaxLevel(level, b)
		reasons = append(reasons, Reason{
			Commit:   shortHash(e.Git.Hash),
			Type:     e.Parsed.Type,
			Summary:  e.Parsed.Subject,
			Level:    b,
			LevelStr: b.String(),
			Breaking: e.Parsed.Breaking,
		})
	}
	return level, reasons
}

// unchanged applies the skipUnchanged policy: a package whose content
// fingerprint matches its last release has nothing worth shipping.
func (p *Planner) unchanged(pkg *workspace.Package, hist *analyze.PackageHistory) (bool, string) {
	if !p.cfg.SkipUnchanged || p.lookup == nil || hist.Initial {
		return false, ""
	}
	last, ok := p.lookup.Fingerprint(pkg.Name, hist.LastTag)
	if !ok {
		return false, ""
	}
	current, err := p.current(pkg)
	if err != nil {
		return false, ""
	}
	if current != last {
		return false, ""
	}
	return true, fmt.Sprintf("content unchanged since %s", hist.LastTag)
}

// rangeEdits computes the internal dependency range updates a release
// carries for its releasing dependencies.
func (p *Planner) rangeEdits(rel *Release, releasing map[string]*Release) []RangeEdit {
	var edits []RangeEdit
	for _, e := range p.graph.Edges() {
		if e.From != rel.Name {
			continue
		}
		dep := releasing[e.To]
		if dep == nil {
			continue
		}
		updated := manifest.BumpRange(e.Range, dep.NewVersion.String())
		if updated == e.Range {
			continue // workspace: protocol and wildcards stay put
		}
		edits = append(edits, RangeEdit{
			Dep:      e.To,
			Group:    e.Group,
			OldRange: e.Range,
			NewRange: updated,
		})
	}
	return edits
}

// applyFixed lifts every release to the shared next version: the
// highest version any release would reach on its own.
func applyFixed(releasing map[string]*Release) {
	var next semver.Version
	for _, rel := range releasing {
		if semver.Less(next, rel.NewVersion) {
			next = rel.NewVersion
		}
	}
	for _, rel := range releasing {
		rel.NewVersion = next
	}
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
