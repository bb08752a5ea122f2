// Package render writes scan, graph, plan, lint, and history results
// as plain text, styled trees, or versioned JSON.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"

	"relkit/internal/depgraph"
	"relkit/internal/lint"
	"relkit/internal/plan"
	"relkit/internal/workspace"
)

// Format selects the output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatTree Format = "tree"
	FormatJSON Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatText, FormatTree, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown format %q (want text, tree, or json)", s)
	}
}

// Schema is the JSON envelope version.
const Schema = "relkit/v1"

var (
	styleMajor   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	styleMinor   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	stylePatch   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleDim     = lipgloss.NewStyle().Faint(true)
	styleName    = lipgloss.NewStyle().Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

// levelStyle maps bump level names to their display style.
func levelStyle(level string) lipgloss.Style {
	switch level {
	case "major":
		return styleMajor
	case "minor":
		return styleMinor
	case "patch":
		return stylePatch
	default:
		return styleDim
	}
}

// Renderer writes results in one format.
type Renderer struct {
	out    io.Writer
	format Format
}

// New creates a renderer.
func New(out io.Writer, format Format) *Renderer {
	return &Renderer{out: out, format: format}
}

// envelope is the stable JSON output contract.
type envelope struct {
	Schema string `json:"schema"`
	Kind   string `json:"kind"`
	Data   any    `json:"data"`
}

func (r *Renderer) writeJSON(kind string, data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(envelope{Schema: Schema, Kind: kind, Data: data})
}

// branch returns the tree connector for child i of n.
func branch(i, n int) string {
	if i == n-1 {
		return "└── "
	}
	return "├── "
}

// jsonPackage is the package shape emitted by Workspace.
type jsonPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Dir     string `json:"dir"`
	Private bool   `json:"private,omitempty"`
}

// Workspace renders the scanned package list.
func (r *Renderer) Workspace(ws *workspace.Workspace) error {
	switch r.format {
	case FormatJSON:
		pkgs := make([]jsonPackage, 0, len(ws.Packages))
		for _, p := range ws.Packages {
			pkgs = append(pkgs, jsonPackage{Name: p.Name, Version: p.Manifest.Version, Dir: p.Dir, Private: p.Manifest.Private})
		}
		return r.writeJSON("workspace", pkgs)

	case FormatTree:
		fmt.Fprintln(r.out, styleName.Render(ws.Root))
		for i, p := range ws.Packages {
			line := fmt.Sprintf("%s %s", p.Name, styleDim.Render(p.Manifest.Version))
			if p.Manifest.Private {
				line += " " + styleDim.Render("(private)")
			}
			fmt.Fprintf(r.out, "%s%s\n", branch(i, len(ws.Packages)), line)
		}
		return nil

	default:
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		for _, p := range ws.Packages {
			private := ""
			if p.Manifest.Private {
				private = "private"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, p.Manifest.Version, p.Dir, private)
		}
		return tw.Flush()
	}
}

// jsonGraph is the graph shape emitted by Graph.
type jsonGraph struct {
	Packages []string        `json:"packages"`
	Edges    []depgraph.Edge `json:"edges"`
	Cycles   [][]string      `json:"cycles,omitempty"`
}

// Graph renders the internal dependency graph.
func (r *Renderer) Graph(g *depgraph.Graph) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON("graph", jsonGraph{
			Packages: g.Packages(),
			Edges:    g.Edges(),
			Cycles:   g.Cycles(),
		})

	case FormatTree:
		pkgs := g.Packages()
		for _, name := range pkgs {
			deps := g.DependenciesOf(name)
			dependents := g.DependentsOf(name)
			fmt.Fprintln(r.out, styleName.Render(name))
			for i, dep := range deps {
				fmt.Fprintf(r.out, "%s%s\n", branch(i, len(deps)+1), dep)
			}
			fmt.Fprintf(r.out, "%s%s\n", branch(len(deps), len(deps)+1),
				styleDim.Render(fmt.Sprintf("%d dependent(s)", len(dependents))))
		}
		for _, cycle := range g.Cycles() {
			fmt.Fprintln(r.out, styleError.Render(fmt.Sprintf("cycle: %v", cycle)))
		}
		return nil

	default:
		for _, e := range g.Edges() {
			fmt.Fprintf(r.out, "%s -> %s (%s %s)\n", e.From, e.To, e.Group, e.Range)
		}
		for _, cycle := range g.Cycles() {
			fmt.Fprintf(r.out, "cycle: %v\n", cycle)
		}
		return nil
	}
}

// Plan renders a release forecast.
func (r *Renderer) Plan(p *plan.Plan) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON("plan", p)

	case FormatTree:
		if p.Empty() {
			fmt.Fprintln(r.out, styleDim.Render("nothing to release"))
			return nil
		}
		header := fmt.Sprintf("%d release(s)", len(p.Releases))
		if p.Fixed != "" {
			header += " at " + p.Fixed
		}
		fmt.Fprintln(r.out, styleName.Render(header))
		for i, rel := range p.Releases {
			label := fmt.Sprintf("%s %s → %s %s",
				rel.Name, rel.Old, rel.New, levelStyle(rel.LevelStr).Render(rel.LevelStr))
			if rel.Cascade {
				label += " " + styleDim.Render("(cascade)")
			}
			if !rel.Publish {
				label += " " + styleDim.Render("(no publish)")
			}
			fmt.Fprintf(r.out, "%s%s\n", branch(i, len(p.Releases)), label)

			last := i == len(p.Releases)-1
			indent := "│   "
			if last {
				indent = "    "
			}
			children := len(rel.Reasons) + len(rel.RangeEdits)
			n := 0
			for _, reason := range rel.Reasons {
				fmt.Fprintf(r.out, "%s%s%s %s %s\n", indent, branch(n, children),
					styleDim.Render(reason.Commit), reason.Type, reason.Summary)
				n++
			}
			for _, edit := range rel.RangeEdits {
				fmt.Fprintf(r.out, "%s%s%s\n", indent, branch(n, children),
					styleDim.Render(fmt.Sprintf("%s %s → %s", edit.Dep, edit.OldRange, edit.NewRange)))
				n++
			}
		}
		for _, skip := range p.Skipped {
			fmt.Fprintln(r.out, styleDim.Render(fmt.Sprintf("skipped %s: %s", skip.Package, skip.Reason)))
		}
		return nil

	default:
		if p.Empty() {
			fmt.Fprintln(r.out, "nothing to release")
			return nil
		}
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		for _, rel := range p.Releases {
			kind := "direct"
			if rel.Cascade {
				kind = "cascade"
			}
			if rel.Initial {
				kind = "initial"
			}
			fmt.Fprintf(tw, "%s\t%s -> %s\t%s\t%s\t%s\n", rel.Name, rel.Old, rel.New, rel.LevelStr, kind, rel.Tag)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		for _, skip := range p.Skipped {
			fmt.Fprintf(r.out, "skipped %s: %s\n", skip.Package, skip.Reason)
		}
		return nil
	}
}

// Diffs renders manifest edit previews for plan --diff.
func (r *Renderer) Diffs(diffs []plan.FileDiff) error {
	if r.format == FormatJSON {
		type jsonDiff struct {
			Path string `json:"path"`
			Old  string `json:"old"`
			New  string `json:"new"`
		}
		out := make([]jsonDiff, 0, len(diffs))
		for _, d := range diffs {
			out = append(out, jsonDiff{Path: d.Path, Old: d.Old, New: d.New})
		}
		return r.writeJSON("diff", out)
	}

	for _, d := range diffs {
		fmt.Fprintln(r.out, styleName.Render("--- "+d.Path))
		fmt.Fprintln(r.out, d.Pretty())
	}
	return nil
}

// Lint renders a lint report.
func (r *Renderer) Lint(report *lint.Report) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON("lint", report)

	case FormatTree:
		summary := fmt.Sprintf("%d error(s), %d warning(s), %d skipped",
			report.Errors, report.Warnings, len(report.Skipped))
		fmt.Fprintln(r.out, styleName.Render(summary))
		for i, f := range report.Findings {
			sev := f.SeverityName
			if f.Severity == lint.SeverityError {
				sev = styleError.Render(sev)
			} else {
				sev = styleWarning.Render(sev)
			}
			where := ""
			if f.Package != "" {
				where = " " + styleDim.Render(f.Package)
			}
			if f.Commit != "" {
				where += " " + styleDim.Render(f.Commit)
			}
			fmt.Fprintf(r.out, "%s%s %s%s: %s\n", branch(i, len(report.Findings)), sev, f.Rule, where, f.Message)
		}
		for _, s := range report.Skipped {
			fmt.Fprintln(r.out, styleDim.Render(fmt.Sprintf("skipped %s: %s", s.Rule, s.Reason)))
		}
		return nil

	default:
		for _, f := range report.Findings {
			where := ""
			if f.Package != "" {
				where = " [" + f.Package + "]"
			}
			if f.Commit != "" {
				where += " [" + f.Commit + "]"
			}
			fmt.Fprintf(r.out, "%s: %s%s: %s\n", f.SeverityName, f.Rule, where, f.Message)
		}
		fmt.Fprintf(r.out, "%d error(s), %d warning(s), %d skipped\n",
			report.Errors, report.Warnings, len(report.Skipped))
		return nil
	}
}
