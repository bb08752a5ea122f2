package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relkit/internal/analyze"
	"relkit/internal/commit"
	"relkit/internal/config"
	"relkit/internal/depgraph"
	"relkit/internal/gitio"
	"relkit/internal/manifest"
	"relkit/internal/semver"
	"relkit/internal/workspace"
)

type fixture struct {
	ws       *workspace.Workspace
	graph    *depgraph.Graph
	analysis *analyze.Analysis
}

// newFixture builds a workspace from manifest documents and a commit
// analysis from per-package commit messages.
func newFixture(t *testing.T, manifests map[string]string, commits map[string][]string) *fixture {
	t.Helper()

	var pkgs []*workspace.Package
	for dir, doc := range manifests {
		m, err := manifest.Parse([]byte(doc))
		require.NoError(t, err)
		pkgs = append(pkgs, &workspace.Package{Name: m.Name, Dir: dir, Manifest: m})
	}
	ws := workspace.New("", pkgs)

	analysis := &analyze.Analysis{
		Histories: make(map[string]*analyze.PackageHistory),
		Head:      "headhash",
	}
	hashes := 0
	for _, p := range ws.Packages {
		hist := &analyze.PackageHistory{Package: p}
		msgs, ok := commits[p.Name]
		if !ok {
			// Packages without listed commits count as previously
			// released with nothing new.
			hist.LastTag = p.Name + "@" + p.Manifest.Version
			hist.LastVersion = semver.MustParse(p.Manifest.Version)
			analysis.Histories[p.Name] = hist
			continue
		}
		hist.LastTag = p.Name + "@" + p.Manifest.Version
		hist.LastVersion = semver.MustParse(p.Manifest.Version)
		for _, msg := range msgs {
			hashes++
			gc := gitio.Commit{
				Hash:    string(rune('a'+hashes)) + "bcdef1234567",
				Message: msg,
				When:    time.Now(),
			}
			parsed := commit.Parse(msg)
			parsed.Hash = gc.Hash
			hist.Commits = append(hist.Commits, analyze.Entry{Git: gc, Parsed: parsed})
		}
		analysis.Histories[p.Name] = hist
	}

	return &fixture{ws: ws, graph: depgraph.Build(ws), analysis: analysis}
}

func (f *fixture) run(t *testing.T, cfg *config.Config) *Plan {
	t.Helper()
	p, err := New(f.ws, f.graph, cfg).Run(f.analysis)
	require.NoError(t, err)
	return p
}

var chainManifests = map[string]string{
	"packages/utils": `{"name":"utils","version":"1.2.0"}`,
	"packages/core":  `{"name":"core","version":"2.0.0","dependencies":{"utils":"^1.2.0"}}`,
	"packages/cli":   `{"name":"cli","version":"0.9.0","dependencies":{"core":"^2.0.0"}}`,
}

func TestDirectBumps(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"fix(utils): handle empty input", "feat(utils): add helper"},
		"core":  {"docs(core): clarify readme"},
	})

	plan := f.run(t, config.DefaultConfig())

	utils := plan.Release("utils")
	require.NotNil(t, utils)
	assert.Equal(t, "1.2.0", utils.Old)
	assert.Equal(t, "1.3.0", utils.New)
	assert.Equal(t, "minor", utils.LevelStr)
	assert.False(t, utils.Cascade)
	assert.Len(t, utils.Reasons, 2)

	// docs alone does not release core directly, but the utils release
	// cascades into it.
	core := plan.Release("core")
	require.NotNil(t, core)
	assert.True(t, core.Cascade)
	assert.Equal(t, "2.0.1", core.New)
	assert.Equal(t, []string{"utils"}, core.CascadeOf)
}

func TestCascadeIsTransitive(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"fix(utils): patch"},
	})

	plan := f.run(t, config.DefaultConfig())
	require.Len(t, plan.Releases, 3)

	// utils before core before cli.
	assert.Equal(t, "utils", plan.Releases[0].Name)
	assert.Equal(t, "core", plan.Releases[1].Name)
	assert.Equal(t, "cli", plan.Releases[2].Name)

	cli := plan.Release("cli")
	assert.True(t, cli.Cascade)
	assert.Equal(t, "0.9.1", cli.New)
	assert.Equal(t, []string{"core"}, cli.CascadeOf)
}

func TestCascadeNeverDowngrades(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"fix(utils): patch"},
		"core":  {"feat(core)!: breaking rework\n\nBREAKING CHANGE: new API"},
	})

	plan := f.run(t, config.DefaultConfig())

	core := plan.Release("core")
	require.NotNil(t, core)
	assert.False(t, core.Cascade)
	assert.Equal(t, "major", core.LevelStr)
	assert.Equal(t, "3.0.0", core.New)
	// The direct release still records its releasing dependency.
	assert.Equal(t, []string{"utils"}, core.CascadeOf)
}

func TestRangeEdits(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"feat(utils): new helper"},
	})

	plan := f.run(t, config.DefaultConfig())

	core := plan.Release("core")
	require.NotNil(t, core)
	require.Len(t, core.RangeEdits, 1)
	edit := core.RangeEdits[0]
	assert.Equal(t, "utils", edit.Dep)
	assert.Equal(t, "^1.2.0", edit.OldRange)
	assert.Equal(t, "^1.3.0", edit.NewRange)
}

func TestWorkspaceProtocolRangesUntouched(t *testing.T) {
	manifests := map[string]string{
		"packages/utils": `{"name":"utils","version":"1.0.0"}`,
		"packages/core":  `{"name":"core","version":"1.0.0","dependencies":{"utils":"workspace:*"}}`,
	}
	f := newFixture(t, manifests, map[string][]string{
		"utils": {"feat(utils): x"},
	})

	plan := f.run(t, config.DefaultConfig())
	core := plan.Release("core")
	require.NotNil(t, core)
	assert.Empty(t, core.RangeEdits)
}

func TestPrivatePackagesBumpButNeverPublish(t *testing.T) {
	manifests := map[string]string{
		"packages/utils": `{"name":"utils","version":"1.0.0"}`,
		"packages/infra": `{"name":"infra","version":"1.0.0","private":true,"dependencies":{"utils":"^1.0.0"}}`,
	}
	f := newFixture(t, manifests, map[string][]string{
		"utils": {"fix(utils): x"},
	})

	plan := f.run(t, config.DefaultConfig())
	infra := plan.Release("infra")
	require.NotNil(t, infra)
	assert.False(t, infra.Publish)
	assert.Equal(t, "1.0.1", infra.New)
}

func TestInitialReleaseShipsManifestVersion(t *testing.T) {
	f := newFixture(t, map[string]string{
		"packages/fresh": `{"name":"fresh","version":"0.1.0"}`,
	}, nil)
	hist := f.analysis.Histories["fresh"]
	hist.LastTag = ""
	hist.LastVersion = semver.Version{}
	hist.Initial = true
	hist.Commits = []analyze.Entry{{
		Git:    gitio.Commit{Hash: "abc1234567890", Message: "feat: first cut"},
		Parsed: commit.Parse("feat: first cut"),
	}}

	plan := f.run(t, config.DefaultConfig())
	fresh := plan.Release("fresh")
	require.NotNil(t, fresh)
	assert.True(t, fresh.Initial)
	assert.Equal(t, "0.1.0", fresh.New)
	assert.Equal(t, "fresh@0.1.0", fresh.Tag)
}

func TestInitialWithoutCommitsIsIgnored(t *testing.T) {
	f := newFixture(t, map[string]string{
		"packages/fresh": `{"name":"fresh","version":"0.1.0"}`,
	}, nil)
	f.analysis.Histories["fresh"].Initial = true
	f.analysis.Histories["fresh"].LastTag = ""

	plan := f.run(t, config.DefaultConfig())
	assert.True(t, plan.Empty())
}

func TestNoChangesEmptyPlan(t *testing.T) {
	f := newFixture(t, chainManifests, nil)
	plan := f.run(t, config.DefaultConfig())
	assert.True(t, plan.Empty())
}

func TestFixedMode(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"feat(utils): x"},
		"core":  {"fix(core): y"},
	})

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeFixed

	plan := f.run(t, cfg)
	require.NotEmpty(t, plan.Releases)

	// Highest individual next version wins: core 2.0.0 -> 2.0.1.
	assert.Equal(t, "2.0.1", plan.Fixed)
	for _, rel := range plan.Releases {
		assert.Equal(t, "2.0.1", rel.New)
		assert.Equal(t, "v2.0.1", rel.Tag)
	}
}

func TestTagFormat(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"fix(utils): x"},
	})

	plan := f.run(t, config.DefaultConfig())
	assert.Equal(t, "utils@1.2.1", plan.Release("utils").Tag)
}

type fakeFingerprints map[string]string

func (f fakeFingerprints) Fingerprint(pkg, tag string) (string, bool) {
	d, ok := f[pkg+"/"+tag]
	return d, ok
}

func TestSkipUnchanged(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"fix(utils): revert then re-revert"},
	})

	cfg := config.DefaultConfig()
	cfg.SkipUnchanged = true

	planner := New(f.ws, f.graph, cfg).
		WithFingerprints(fakeFingerprints{"utils/utils@1.2.0": "samedigest"})
	planner.current = func(p *workspace.Package) (string, error) {
		return "samedigest", nil
	}

	plan, err := planner.Run(f.analysis)
	require.NoError(t, err)
	assert.Nil(t, plan.Release("utils"))
	require.Len(t, plan.Skipped, 1)
	assert.Equal(t, "utils", plan.Skipped[0].Package)
	assert.True(t, plan.Empty())
}

func TestCycleFailsPlanning(t *testing.T) {
	manifests := map[string]string{
		"packages/a": `{"name":"a","version":"1.0.0","dependencies":{"b":"^1.0.0"}}`,
		"packages/b": `{"name":"b","version":"1.0.0","dependencies":{"a":"^1.0.0"}}`,
	}
	f := newFixture(t, manifests, map[string][]string{
		"a": {"fix(a): x"},
	})

	_, err := New(f.ws, f.graph, config.DefaultConfig()).Run(f.analysis)
	assert.Error(t, err)
}

func TestManifestDiffs(t *testing.T) {
	f := newFixture(t, chainManifests, map[string][]string{
		"utils": {"feat(utils): new helper"},
	})

	plan := f.run(t, config.DefaultConfig())
	diffs, err := plan.ManifestDiffs()
	require.NoError(t, err)
	require.NotEmpty(t, diffs)

	assert.Equal(t, "packages/utils/package.json", diffs[0].Path)
	assert.Contains(t, diffs[0].New, `"version": "1.3.0"`)
	assert.Contains(t, diffs[0].Old, `"version": "1.2.0"`)

	var corePaths []string
	for _, d := range diffs {
		corePaths = append(corePaths, d.Path)
	}
	assert.Contains(t, corePaths, "packages/core/package.json")
}
