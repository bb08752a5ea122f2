package history

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordAndListRuns(t *testing.T) {
	s := openStore(t)

	run := Run{
		ID:        NewRunID(),
		CreatedAt: time.Now().Add(-time.Hour),
		Head:      "abc123",
		Mode:      "independent",
		Releases: []Release{
			{Package: "utils", OldVersion: "1.0.0", NewVersion: "1.1.0", Level: "minor", Published: true, Tag: "utils@1.1.0"},
			{Package: "core", OldVersion: "2.0.0", NewVersion: "2.0.1", Level: "patch", Cascade: true, Published: true, Tag: "core@2.0.1"},
		},
	}
	require.NoError(t, s.RecordRun(run))

	later := Run{
		ID:        NewRunID(),
		CreatedAt: time.Now(),
		Head:      "def456",
		Mode:      "independent",
		DryRun:    true,
		Releases: []Release{
			{Package: "utils", OldVersion: "1.1.0", NewVersion: "1.2.0", Level: "minor", Tag: "utils@1.2.0"},
		},
	}
	require.NoError(t, s.RecordRun(later))

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, later.ID, runs[0].ID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, run.ID, runs[1].ID)
	require.Len(t, runs[1].Releases, 2)
	// Releases come back sorted by package.
	assert.Equal(t, "core", runs[1].Releases[0].Package)
	assert.True(t, runs[1].Releases[0].Cascade)
}

func TestLatestReleaseSkipsDryRuns(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.RecordRun(Run{
		ID: NewRunID(), CreatedAt: time.Now().Add(-time.Hour), Head: "a", Mode: "independent",
		Releases: []Release{{Package: "utils", OldVersion: "1.0.0", NewVersion: "1.1.0", Level: "minor", Published: true, Tag: "utils@1.1.0"}},
	}))
	require.NoError(t, s.RecordRun(Run{
		ID: NewRunID(), CreatedAt: time.Now(), Head: "b", Mode: "independent", DryRun: true,
		Releases: []Release{{Package: "utils", OldVersion: "1.1.0", NewVersion: "1.2.0", Level: "minor", Tag: "utils@1.2.0"}},
	}))

	rel, err := s.LatestRelease("utils")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", rel.NewVersion)
	assert.True(t, rel.Published)

	_, err = s.LatestRelease("unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFingerprints(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.RecordFingerprint("utils", "utils@1.1.0", "deadbeef"))

	digest, ok := s.Fingerprint("utils", "utils@1.1.0")
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)

	_, ok = s.Fingerprint("utils", "utils@9.9.9")
	assert.False(t, ok)

	// Re-recording replaces the digest.
	require.NoError(t, s.RecordFingerprint("utils", "utils@1.1.0", "cafef00d"))
	digest, _ = s.Fingerprint("utils", "utils@1.1.0")
	assert.Equal(t, "cafef00d", digest)
}
