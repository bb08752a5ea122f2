// Package execute applies a release plan: manifest edits, changelogs,
// the release commit, tags, publishes, and the run's history record.
package execute

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"relkit/internal/audit"
	"relkit/internal/config"
	"relkit/internal/history"
	"relkit/internal/manifest"
	"relkit/internal/plan"
	"relkit/internal/workspace"
)

// Git is the repository surface the executor needs. *gitio.Repository
// satisfies it.
type Git interface {
	CommitPaths(paths []string, message string) (string, error)
	CreateTag(name, message string) error
	HasTag(name string) (bool, error)
}

// Options control an execution run.
type Options struct {
	// RunID identifies the run; a fresh id is generated when empty.
	RunID string
	// DryRun logs every step and touches nothing.
	DryRun bool
	// SkipPublish applies manifests, commit, and tags but never calls
	// npm.
	SkipPublish bool
}

// Result reports what a run did, step by step. On error the actions
// already applied are still listed so the operator can resume by hand.
type Result struct {
	RunID     string   `json:"run"`
	DryRun    bool     `json:"dryRun"`
	Actions   []string `json:"actions"`
	Tags      []string `json:"tags,omitempty"`
	Published []string `json:"published,omitempty"`
	Bundle    string   `json:"bundle,omitempty"`
	Commit    string   `json:"commit,omitempty"`
}

func (r *Result) act(format string, args ...any) {
	r.Actions = append(r.Actions, fmt.Sprintf(format, args...))
}

// Executor applies plans to a workspace.
type Executor struct {
	ws    *workspace.Workspace
	cfg   *config.Config
	git   Git
	store *history.Store
	log   *audit.Logger
	pub   Publisher
	opts  Options

	now func() time.Time
}

// New creates an executor. store and log may be nil to skip history
// recording and audit logging.
func New(ws *workspace.Workspace, cfg *config.Config, git Git, store *history.Store, log *audit.Logger, opts Options) *Executor {
	if log == nil {
		log = audit.Nop()
	}
	return &Executor{
		ws:    ws,
		cfg:   cfg,
		git:   git,
		store: store,
		log:   log,
		pub:   NpmPublisher{},
		opts:  opts,
		now:   time.Now,
	}
}

// WithPublisher substitutes the publisher. Tests use it.
func (e *Executor) WithPublisher(p Publisher) *Executor {
	e.pub = p
	return e
}

// Run applies a plan. It fails fast: the first error stops the run,
// and the returned result lists every step already applied.
func (e *Executor) Run(p *plan.Plan) (*Result, error) {
	runID := e.opts.RunID
	if runID == "" {
		runID = history.NewRunID()
	}
	res := &Result{RunID: runID, DryRun: e.opts.DryRun}
	if p.Empty() {
		res.act("nothing to release")
		return res, nil
	}

	// Tag collisions abort before anything is touched.
	for _, tag := range planTags(p) {
		exists, err := e.git.HasTag(tag)
		if err != nil {
			return res, fmt.Errorf("checking tag %s: %w", tag, err)
		}
		if exists {
			return res, fmt.Errorf("tag %s already exists", tag)
		}
	}

	var commitPaths []string
	data, err := planJSON(p)
	if err != nil {
		return res, fmt.Errorf("encoding plan: %w", err)
	}
	bundleFiles := []BundleFile{{Path: "plan.json", Content: data}}

	for _, rel := range p.Releases {
		pkg := rel.Package()
		if pkg == nil {
			return res, fmt.Errorf("release %s has no workspace package", rel.Name)
		}

		pkg.Manifest.SetVersion(rel.New)
		for _, edit := range rel.RangeEdits {
			pkg.Manifest.SetDepRange(edit.Dep, edit.NewRange)
		}

		manifestPath := path.Join(pkg.Dir, manifest.Filename)
		encoded, err := pkg.Manifest.Encode()
		if err != nil {
			return res, fmt.Errorf("encoding %s: %w", manifestPath, err)
		}
		bundleFiles = append(bundleFiles, BundleFile{Path: manifestPath, Content: encoded})

		if !e.opts.DryRun {
			if err := pkg.Manifest.SaveTo(filepath.Join(e.ws.Root, filepath.FromSlash(manifestPath))); err != nil {
				return res, fmt.Errorf("writing %s: %w", manifestPath, err)
			}
		}
		commitPaths = append(commitPaths, manifestPath)
		res.act("write %s (%s -> %s)", manifestPath, rel.Old, rel.New)
		e.log.Action("manifest", zap.String("path", manifestPath), zap.String("version", rel.New))

		if e.cfg.Changelog {
			clPath := path.Join(pkg.Dir, ChangelogName)
			section := changelogSection(rel, e.now())
			if !e.opts.DryRun {
				if err := prependChangelog(filepath.Join(e.ws.Root, filepath.FromSlash(clPath)), section); err != nil {
					return res, err
				}
			}
			commitPaths = append(commitPaths, clPath)
			res.act("write %s", clPath)
			e.log.Action("changelog", zap.String("path", clPath))
		}
	}

	if err := e.writeBundle(res, bundleFiles); err != nil {
		return res, err
	}

	if err := e.commitAndTag(res, p, commitPaths); err != nil {
		return res, err
	}

	pubErr := e.publish(res, p)

	e.record(res, p)
	if pubErr != nil {
		return res, pubErr
	}
	return res, nil
}

func (e *Executor) writeBundle(res *Result, files []BundleFile) error {
	bundlePath := filepath.Join(e.ws.Root, config.StateDir, "bundles", res.RunID+".relpack")
	res.Bundle = bundlePath
	if e.opts.DryRun {
		res.act("bundle %s (dry run)", bundlePath)
		return nil
	}

	data, err := BuildBundle(res.RunID, files)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(bundlePath), 0755); err != nil {
		return fmt.Errorf("creating bundle dir: %w", err)
	}
	if err := os.WriteFile(bundlePath, data, 0644); err != nil {
		return fmt.Errorf("writing bundle: %w", err)
	}
	res.act("bundle %s", bundlePath)
	e.log.Action("bundle", zap.String("path", bundlePath), zap.Int("files", len(files)))
	return nil
}

func (e *Executor) commitAndTag(res *Result, p *plan.Plan, paths []string) error {
	message := releaseCommitMessage(p)
	if e.opts.DryRun {
		res.act("commit %q (dry run)", message)
	} else {
		hash, err := e.git.CommitPaths(paths, message)
		if err != nil {
			return fmt.Errorf("release commit: %w", err)
		}
		res.Commit = hash
		res.act("commit %s", hash)
		e.log.Action("commit", zap.String("hash", hash))
	}

	for _, tag := range planTags(p) {
		if e.opts.DryRun {
			res.act("tag %s (dry run)", tag)
			res.Tags = append(res.Tags, tag)
			continue
		}
		if err := e.git.CreateTag(tag, message); err != nil {
			return fmt.Errorf("creating tag %s: %w", tag, err)
		}
		res.Tags = append(res.Tags, tag)
		res.act("tag %s", tag)
		e.log.Action("tag", zap.String("name", tag))
	}
	return nil
}

// publish pushes every publishable release, stopping at the first
// failure.
func (e *Executor) publish(res *Result, p *plan.Plan) error {
	for _, rel := range p.Releases {
		if !rel.Publish {
			continue
		}
		if e.opts.SkipPublish {
			res.act("skip publish %s", rel.Name)
			continue
		}
		if e.opts.DryRun {
			res.act("publish %s@%s (dry run)", rel.Name, rel.New)
			continue
		}

		pkg := rel.Package()
		settings := publishSettings(e.cfg.Publish, pkg.Manifest)
		dir := filepath.Join(e.ws.Root, filepath.FromSlash(pkg.Dir))
		if err := e.pub.Publish(dir, settings); err != nil {
			e.log.Error("publish", err, zap.String("package", rel.Name))
			return fmt.Errorf("publishing %s: %w", rel.Name, err)
		}
		res.Published = append(res.Published, rel.Name)
		res.act("publish %s@%s", rel.Name, rel.New)
		e.log.Action("publish", zap.String("package", rel.Name), zap.String("version", rel.New))
	}
	return nil
}

// record writes the run to the history store, including per-package
// fingerprints for the skipUnchanged policy.
func (e *Executor) record(res *Result, p *plan.Plan) {
	if e.store == nil {
		return
	}

	published := make(map[string]bool, len(res.Published))
	for _, name := range res.Published {
		published[name] = true
	}

	run := history.Run{
		ID:           res.RunID,
		CreatedAt:    e.now(),
		Head:         p.Head,
		Mode:         p.Mode,
		FixedVersion: p.Fixed,
		DryRun:       e.opts.DryRun,
	}
	for _, rel := range p.Releases {
		run.Releases = append(run.Releases, history.Release{
			Package:    rel.Name,
			OldVersion: rel.Old,
			NewVersion: rel.New,
			Level:      rel.LevelStr,
			Cascade:    rel.Cascade,
			Published:  published[rel.Name],
			Tag:        rel.Tag,
		})
	}
	if err := e.store.RecordRun(run); err != nil {
		e.log.Error("history", err)
		return
	}

	if e.opts.DryRun {
		return
	}
	for _, rel := range p.Releases {
		if digest, err := rel.Package().Fingerprint(e.ws.Root); err == nil {
			if err := e.store.RecordFingerprint(rel.Name, rel.Tag, digest); err != nil {
				e.log.Error("fingerprint", err, zap.String("package", rel.Name))
			}
		}
	}
}

// planTags returns the plan's tags deduplicated in release order.
// Fixed-mode plans share one tag across every release.
func planTags(p *plan.Plan) []string {
	seen := make(map[string]bool)
	var tags []string
	for _, rel := range p.Releases {
		if !seen[rel.Tag] {
			seen[rel.Tag] = true
			tags = append(tags, rel.Tag)
		}
	}
	return tags
}

// releaseCommitMessage is the conventional release commit header plus
// the released versions as its body.
func releaseCommitMessage(p *plan.Plan) string {
	msg := "chore(release): publish\n"
	for _, rel := range p.Releases {
		msg += fmt.Sprintf("\n- %s@%s", rel.Name, rel.New)
	}
	return msg
}

func planJSON(p *plan.Plan) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}
