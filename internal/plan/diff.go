package plan

import (
	"fmt"
	"path"

	"github.com/sergi/go-diff/diffmatchpatch"

	"relkit/internal/manifest"
)

// FileDiff previews one manifest edit the plan would apply.
type FileDiff struct {
	// Path is the manifest path relative to the workspace root.
	Path  string
	Old   string
	New   string
	Diffs []diffmatchpatch.Diff
}

// Pretty renders the diff with ANSI colors for terminal output.
func (d FileDiff) Pretty() string {
	dmp := diffmatchpatch.New()
	return dmp.DiffPrettyText(d.Diffs)
}

// ManifestDiffs renders the manifest edits each release would apply,
// without touching disk. Releases with no visible manifest change are
// omitted.
func (p *Plan) ManifestDiffs() ([]FileDiff, error) {
	dmp := diffmatchpatch.New()
	var out []FileDiff

	for _, rel := range p.Releases {
		pkg := rel.Package()
		if pkg == nil {
			continue
		}

		before, err := pkg.Manifest.Encode()
		if err != nil {
			return nil, fmt.Errorf("encoding %s manifest: %w", rel.Name, err)
		}

		// Edit a throwaway copy so the preview never mutates the
		// workspace.
		copyM, err := manifest.Parse(before)
		if err != nil {
			return nil, fmt.Errorf("copying %s manifest: %w", rel.Name, err)
		}
		copyM.SetVersion(rel.New)
		for _, edit := range rel.RangeEdits {
			copyM.SetDepRange(edit.Dep, edit.NewRange)
		}

		after, err := copyM.Encode()
		if err != nil {
			return nil, fmt.Errorf("encoding %s manifest: %w", rel.Name, err)
		}
		if string(before) == string(after) {
			continue
		}

		diffs := dmp.DiffMain(string(before), string(after), false)
		diffs = dmp.DiffCleanupSemantic(diffs)
		out = append(out, FileDiff{
			Path:  path.Join(pkg.Dir, manifest.Filename),
			Old:   string(before),
			New:   string(after),
			Diffs: diffs,
		})
	}
	return out, nil
}
