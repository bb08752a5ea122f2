package render

import (
	"fmt"
	"text/tabwriter"

	"relkit/internal/analyze"
)

// jsonHistoryEntry is the commit shape emitted by Analysis.
type jsonHistoryEntry struct {
	Hash     string `json:"hash"`
	Type     string `json:"type,omitempty"`
	Scope    string `json:"scope,omitempty"`
	Subject  string `json:"subject"`
	Breaking bool   `json:"breaking,omitempty"`
	// Conventional is false for free-form messages.
	Conventional bool `json:"conventional"`
}

type jsonPackageHistory struct {
	Package     string             `json:"package"`
	LastTag     string             `json:"lastTag,omitempty"`
	LastVersion string             `json:"lastVersion,omitempty"`
	Initial     bool               `json:"initial,omitempty"`
	Commits     []jsonHistoryEntry `json:"commits"`
}

// Analysis renders the pending commits attributed to each package.
func (r *Renderer) Analysis(ws []string, a *analyze.Analysis) error {
	histories := make([]jsonPackageHistory, 0, len(ws))
	for _, name := range ws {
		hist := a.Histories[name]
		if hist == nil {
			continue
		}
		jh := jsonPackageHistory{
			Package: name,
			LastTag: hist.LastTag,
			Initial: hist.Initial,
			Commits: []jsonHistoryEntry{},
		}
		if !hist.Initial {
			jh.LastVersion = hist.LastVersion.String()
		}
		for _, e := range hist.Commits {
			jh.Commits = append(jh.Commits, jsonHistoryEntry{
				Hash:         shortRunID(e.Git.Hash),
				Type:         e.Parsed.Type,
				Scope:        e.Parsed.Scope,
				Subject:      e.Parsed.Subject,
				Breaking:     e.Parsed.Breaking,
				Conventional: e.Parsed.Conventional,
			})
		}
		histories = append(histories, jh)
	}

	switch r.format {
	case FormatJSON:
		return r.writeJSON("analysis", histories)

	case FormatTree:
		for _, jh := range histories {
			since := jh.LastTag
			if jh.Initial {
				since = "initial"
			}
			fmt.Fprintf(r.out, "%s %s\n", styleName.Render(jh.Package), styleDim.Render("("+since+")"))
			for i, c := range jh.Commits {
				label := c.Subject
				if c.Type != "" {
					label = c.Type + ": " + c.Subject
				}
				if c.Breaking {
					label = styleMajor.Render("!") + " " + label
				}
				fmt.Fprintf(r.out, "%s%s %s\n", branch(i, len(jh.Commits)), styleDim.Render(c.Hash), label)
			}
		}
		return nil

	default:
		tw := tabwriter.NewWriter(r.out, 0, 4, 2, ' ', 0)
		for _, jh := range histories {
			since := jh.LastTag
			if jh.Initial {
				since = "initial"
			}
			fmt.Fprintf(tw, "%s\t%s\t%d commit(s)\n", jh.Package, since, len(jh.Commits))
			for _, c := range jh.Commits {
				mark := ""
				if c.Breaking {
					mark = "!"
				}
				fmt.Fprintf(tw, "\t%s\t%s%s\t%s\n", c.Hash, c.Type, mark, c.Subject)
			}
		}
		return tw.Flush()
	}
}
