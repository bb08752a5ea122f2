package execute

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relkit/internal/plan"
)

func TestChangelogSectionGroupsByType(t *testing.T) {
	rel := &plan.Release{
		Name: "core", New: "3.0.0", LevelStr: "major",
		Reasons: []plan.Reason{
			{Commit: "aaaa1111", Type: "fix", Summary: "handle nil input"},
			{Commit: "bbbb2222", Type: "feat", Summary: "drop old API", Breaking: true},
			{Commit: "cccc3333", Type: "feat", Summary: "add streaming mode"},
			{Commit: "dddd4444", Type: "refactor", Summary: "split parser"},
		},
	}

	section := changelogSection(rel, time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC))

	assert.True(t, strings.HasPrefix(section, "## 3.0.0 (2026-08-28)"))

	// Breaking first, then features, fixes, the rest.
	breaking := strings.Index(section, "### Breaking Changes")
	features := strings.Index(section, "### Features")
	fixes := strings.Index(section, "### Bug Fixes")
	other := strings.Index(section, "### Other Changes")
	require.True(t, breaking >= 0 && features >= 0 && fixes >= 0 && other >= 0)
	assert.Less(t, breaking, features)
	assert.Less(t, features, fixes)
	assert.Less(t, fixes, other)

	assert.Contains(t, section, "- drop old API (bbbb2222)")
	assert.Contains(t, section, "- split parser (dddd4444)")
}

func TestChangelogSectionCascade(t *testing.T) {
	rel := &plan.Release{
		Name: "cli", New: "0.9.1", LevelStr: "patch",
		Cascade: true, CascadeOf: []string{"core"},
	}

	section := changelogSection(rel, time.Now())
	assert.Contains(t, section, "### Dependencies")
	assert.Contains(t, section, "- bump core")
}

func TestPrependChangelog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")

	require.NoError(t, prependChangelog(path, "## 1.1.0\n\n- second\n\n"))
	require.NoError(t, prependChangelog(path, "## 1.2.0\n\n- third\n\n"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Less(t, strings.Index(content, "## 1.2.0"), strings.Index(content, "## 1.1.0"))
}
