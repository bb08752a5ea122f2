package execute

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relkit/internal/analyze"
	"relkit/internal/commit"
	"relkit/internal/config"
	"relkit/internal/depgraph"
	"relkit/internal/gitio"
	"relkit/internal/history"
	"relkit/internal/manifest"
	"relkit/internal/plan"
	"relkit/internal/semver"
	"relkit/internal/workspace"
)

type fakeGit struct {
	commits  []string
	tags     []string
	existing map[string]bool
}

func (g *fakeGit) CommitPaths(paths []string, message string) (string, error) {
	g.commits = append(g.commits, message)
	return "deadbeefcafe", nil
}

func (g *fakeGit) CreateTag(name, message string) error {
	g.tags = append(g.tags, name)
	return nil
}

func (g *fakeGit) HasTag(name string) (bool, error) {
	return g.existing[name], nil
}

type fakePublisher struct {
	dirs    []string
	configs []config.PublishConfig
	failOn  string
}

func (p *fakePublisher) Publish(dir string, cfg config.PublishConfig) error {
	if p.failOn != "" && filepath.Base(dir) == p.failOn {
		return errors.New("registry rejected the tarball")
	}
	p.dirs = append(p.dirs, dir)
	p.configs = append(p.configs, cfg)
	return nil
}

// setup writes a two-package workspace to disk and plans a release for
// it: utils gets a feat, core cascades.
func setup(t *testing.T) (*workspace.Workspace, *plan.Plan, *config.Config) {
	t.Helper()
	root := t.TempDir()

	docs := map[string]string{
		"packages/utils/package.json": `{"name":"utils","version":"1.2.0"}`,
		"packages/core/package.json":  `{"name":"core","version":"2.0.0","dependencies":{"utils":"^1.2.0"}}`,
	}
	for rel, doc := range docs {
		p := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(doc), 0644))
	}

	var pkgs []*workspace.Package
	for rel := range docs {
		m, err := manifest.Load(filepath.Join(root, filepath.FromSlash(rel)))
		require.NoError(t, err)
		pkgs = append(pkgs, &workspace.Package{Name: m.Name, Dir: filepath.ToSlash(filepath.Dir(rel)), Manifest: m})
	}
	ws := workspace.New(root, pkgs)

	analysis := &analyze.Analysis{
		Histories: map[string]*analyze.PackageHistory{},
		Head:      "abc123",
	}
	for _, p := range ws.Packages {
		analysis.Histories[p.Name] = &analyze.PackageHistory{
			Package:     p,
			LastTag:     p.Name + "@" + p.Manifest.Version,
			LastVersion: semver.MustParse(p.Manifest.Version),
		}
	}
	msg := "feat(utils): add helper"
	analysis.Histories["utils"].Commits = []analyze.Entry{{
		Git:    gitio.Commit{Hash: "abcdef1234567890", Message: msg, When: time.Now()},
		Parsed: commit.Parse(msg),
	}}

	cfg := config.DefaultConfig()
	pl, err := plan.New(ws, depgraph.Build(ws), cfg).Run(analysis)
	require.NoError(t, err)
	require.Len(t, pl.Releases, 2)
	return ws, pl, cfg
}

func TestRunAppliesPlan(t *testing.T) {
	ws, pl, cfg := setup(t)
	git := &fakeGit{}
	pub := &fakePublisher{}
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	exec := New(ws, cfg, git, store, nil, Options{}).WithPublisher(pub)
	res, err := exec.Run(pl)
	require.NoError(t, err)

	// Manifests rewritten on disk.
	m, err := manifest.Load(filepath.Join(ws.Root, "packages/utils/package.json"))
	require.NoError(t, err)
	assert.Equal(t, "1.3.0", m.Version)

	core, err := manifest.Load(filepath.Join(ws.Root, "packages/core/package.json"))
	require.NoError(t, err)
	rng, _, ok := core.DepRange("utils")
	require.True(t, ok)
	assert.Equal(t, "^1.3.0", rng)

	// Changelogs created.
	cl, err := os.ReadFile(filepath.Join(ws.Root, "packages/utils/CHANGELOG.md"))
	require.NoError(t, err)
	assert.Contains(t, string(cl), "## 1.3.0")
	assert.Contains(t, string(cl), "add helper")

	// One release commit, tags in release order.
	require.Len(t, git.commits, 1)
	assert.Contains(t, git.commits[0], "chore(release): publish")
	assert.Equal(t, []string{"utils@1.3.0", "core@2.0.1"}, git.tags)
	assert.Equal(t, "deadbeefcafe", res.Commit)

	// Both packages published.
	assert.Len(t, pub.dirs, 2)
	assert.ElementsMatch(t, []string{"utils", "core"}, res.Published)

	// Bundle written and readable.
	data, err := os.ReadFile(res.Bundle)
	require.NoError(t, err)
	header, files, err := ReadBundle(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, res.RunID, header.Run)
	assert.Contains(t, files, "plan.json")
	assert.Contains(t, files, "packages/utils/package.json")

	// History recorded with fingerprints.
	runs, err := store.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)
	require.Len(t, runs[0].Releases, 2)
	_, ok = store.Fingerprint("utils", "utils@1.3.0")
	assert.True(t, ok)
}

func TestDryRunTouchesNothing(t *testing.T) {
	ws, pl, cfg := setup(t)
	git := &fakeGit{}
	pub := &fakePublisher{}

	exec := New(ws, cfg, git, nil, nil, Options{DryRun: true}).WithPublisher(pub)
	res, err := exec.Run(pl)
	require.NoError(t, err)
	assert.True(t, res.DryRun)

	// Disk untouched.
	raw, err := os.ReadFile(filepath.Join(ws.Root, "packages/utils/package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":"1.2.0"`)
	_, err = os.Stat(filepath.Join(ws.Root, "packages/utils/CHANGELOG.md"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(res.Bundle)
	assert.True(t, os.IsNotExist(err))

	// No git or npm activity, but every step is narrated.
	assert.Empty(t, git.commits)
	assert.Empty(t, git.tags)
	assert.Empty(t, pub.dirs)
	assert.NotEmpty(t, res.Actions)
}

func TestSkipPublish(t *testing.T) {
	ws, pl, cfg := setup(t)
	git := &fakeGit{}
	pub := &fakePublisher{}

	exec := New(ws, cfg, git, nil, nil, Options{SkipPublish: true}).WithPublisher(pub)
	res, err := exec.Run(pl)
	require.NoError(t, err)

	assert.Empty(t, pub.dirs)
	assert.Empty(t, res.Published)
	assert.NotEmpty(t, git.tags)
}

func TestPublishFailureStopsRun(t *testing.T) {
	ws, pl, cfg := setup(t)
	git := &fakeGit{}
	pub := &fakePublisher{failOn: "utils"}
	store, err := history.OpenPath(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	defer store.Close()

	exec := New(ws, cfg, git, store, nil, Options{}).WithPublisher(pub)
	res, err := exec.Run(pl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publishing utils")

	// The applied steps are still reported and recorded.
	assert.NotEmpty(t, res.Actions)
	assert.NotEmpty(t, git.tags)
	runs, err := store.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	for _, rel := range runs[0].Releases {
		assert.False(t, rel.Published)
	}
}

func TestExistingTagAborts(t *testing.T) {
	ws, pl, cfg := setup(t)
	git := &fakeGit{existing: map[string]bool{"utils@1.3.0": true}}

	exec := New(ws, cfg, git, nil, nil, Options{}).WithPublisher(&fakePublisher{})
	_, err := exec.Run(pl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	// Nothing was written.
	raw, err := os.ReadFile(filepath.Join(ws.Root, "packages/utils/package.json"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"version":"1.2.0"`)
}

func TestEmptyPlan(t *testing.T) {
	ws, _, cfg := setup(t)
	exec := New(ws, cfg, &fakeGit{}, nil, nil, Options{})
	res, err := exec.Run(&plan.Plan{})
	require.NoError(t, err)
	assert.Empty(t, res.Tags)
}

func TestPublishSettingsManifestWins(t *testing.T) {
	base := config.PublishConfig{Registry: "https://registry.npmjs.org", Tag: "latest"}
	m, err := manifest.Parse([]byte(`{"name":"x","version":"1.0.0","publishConfig":{"access":"public","tag":"next"}}`))
	require.NoError(t, err)

	got := publishSettings(base, m)
	assert.Equal(t, "https://registry.npmjs.org", got.Registry)
	assert.Equal(t, "public", got.Access)
	assert.Equal(t, "next", got.Tag)
}
