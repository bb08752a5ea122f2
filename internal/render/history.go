package render

import (
	"fmt"
	"text/tabwriter"
	"time"

	"relkit/internal/history"
)

// History renders recorded release runs, newest first.
func (r *Renderer) History(runs []history.Run) error {
	switch r.format {
	case FormatJSON:
		return r.writeJSON("history", runs)

	case FormatTree:
		if len(runs) == 0 {
			fmt.Fprintln(r.out, styleDim.Render("no recorded runs"))
			return nil
		}
		for _, run := range runs {
			label := fmt.Sprintf("%s %s", run.CreatedAt.Format(time.DateTime), shortRunID(run.ID))
			if run.DryRun {
				label += " " + styleDim.Render("(dry run)")
			}
			if run.FixedVersion != "" {
				label += " " + styleDim.Render("v"+run.FixedVersion)
			}
			fmt.Fprintln(r.out, styleName.Render(label))
			for i, rel := range run.Releases {
				line := fmt.Sprintf("%s %s → %s %s",
					rel.Package, rel.OldVersion, rel.NewVersion, levelStyle(rel.Level).Render(rel.Level))
				if rel.Cascade {
					line += " " + styleDim.Render("(cascade)")
				}
				fmt.Fprintf(r.out, "%s%s\n", branch(i, len(run.Releases)), line)
			}
		}
		return nil

	default:
		if len(runs) == 0 {
			fmt.Fprintln(r.out, "no recorded runs")
			return nil
		}
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		for _, run := range runs {
			kind := ""
			if run.DryRun {
				kind = "dry-run"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d release(s)\t%s\n",
				run.CreatedAt.Format(time.DateTime), shortRunID(run.ID), run.Head, len(run.Releases), kind)
			for _, rel := range run.Releases {
				fmt.Fprintf(tw, "\t%s\t%s -> %s\t%s\t%s\n", rel.Package, rel.OldVersion, rel.NewVersion, rel.Level, rel.Tag)
			}
		}
		return tw.Flush()
	}
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
