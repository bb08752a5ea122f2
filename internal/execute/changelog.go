package execute

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"relkit/internal/plan"
)

// ChangelogName is the per-package changelog file.
const ChangelogName = "CHANGELOG.md"

// sectionOrder maps commit types to changelog headings, in display
// order. Types not listed land under Other Changes.
var sectionOrder = []struct {
	typ   string
	title string
}{
	{"feat", "Features"},
	{"fix", "Bug Fixes"},
	{"perf", "Performance"},
	{"revert", "Reverts"},
}

// changelogSection renders the markdown section for one release.
func changelogSection(rel *plan.Release, date time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n\n", rel.New, date.Format("2006-01-02"))

	var breaking []plan.Reason
	byType := make(map[string][]plan.Reason)
	for _, reason := range rel.Reasons {
		if reason.Breaking {
			breaking = append(breaking, reason)
			continue
		}
		byType[reason.Type] = append(byType[reason.Type], reason)
	}

	writeGroup := func(title string, reasons []plan.Reason) {
		if len(reasons) == 0 {
			return
		}
		fmt.Fprintf(&b, "### %s\n\n", title)
		for _, reason := range reasons {
			fmt.Fprintf(&b, "- %s (%s)\n", reason.Summary, reason.Commit)
		}
		b.WriteString("\n")
	}

	writeGroup("Breaking Changes", breaking)
	for _, section := range sectionOrder {
		writeGroup(section.title, byType[section.typ])
		delete(byType, section.typ)
	}

	var rest []plan.Reason
	for _, reasons := range byType {
		rest = append(rest, reasons...)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].Commit < rest[j].Commit })
	writeGroup("Other Changes", rest)

	if rel.Cascade && len(rel.Reasons) == 0 {
		b.WriteString("### Dependencies\n\n")
		for _, dep := range rel.CascadeOf {
			fmt.Fprintf(&b, "- bump %s\n", dep)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// prependChangelog inserts a section at the top of a changelog file,
// keeping any existing content below it.
func prependChangelog(path, section string) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading changelog: %w", err)
	}

	var b strings.Builder
	b.WriteString(section)
	if len(existing) > 0 {
		b.WriteString(strings.TrimLeft(string(existing), "\n"))
	}

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing changelog: %w", err)
	}
	return nil
}
