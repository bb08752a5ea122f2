package semver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		expected Version
	}{
		{"1.2.3", Version{Major: 1, Minor: 2, Patch: 3}},
		{"v1.2.3", Version{Major: 1, Minor: 2, Patch: 3}},
		{"0.0.0", Version{}},
		{"1.0.0-alpha", Version{Major: 1, Prerelease: "alpha"}},
		{"1.0.0-alpha.1", Version{Major: 1, Prerelease: "alpha.1"}},
		{"1.0.0-rc.1+build.5", Version{Major: 1, Prerelease: "rc.1", Build: "build.5"}},
		{"2.1.0+20130313144700", Version{Major: 2, Minor: 1, Build: "20130313144700"}},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			v, err := Parse(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, v)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	invalid := []string{
		"",
		"1",
		"1.2",
		"1.2.3.4",
		"01.2.3",
		"1.02.3",
		"1.2.-3",
		"1.2.3-",
		"1.2.3+",
		"1.2.3-alpha..1",
		"1.2.3-01",
		"1.2.3-alpha_beta",
		"one.two.three",
	}

	for _, in := range invalid {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			assert.Error(t, err)
		})
	}
}

func TestString(t *testing.T) {
	for _, s := range []string{"1.2.3", "1.0.0-alpha.1", "1.0.0-rc.1+build.5", "0.1.0"} {
		v := MustParse(s)
		assert.Equal(t, s, v.String())
	}
}

func TestCompare(t *testing.T) {
	// Ascending precedence, straight from the SemVer spec examples.
	ordered := []string{
		"0.9.9",
		"1.0.0-alpha",
		"1.0.0-alpha.1",
		"1.0.0-alpha.beta",
		"1.0.0-beta",
		"1.0.0-beta.2",
		"1.0.0-beta.11",
		"1.0.0-rc.1",
		"1.0.0",
		"1.0.1",
		"1.1.0",
		"2.0.0",
	}

	for i := 0; i < len(ordered)-1; i++ {
		a, b := MustParse(ordered[i]), MustParse(ordered[i+1])
		assert.Equal(t, -1, Compare(a, b), "%s should precede %s", ordered[i], ordered[i+1])
		assert.Equal(t, 1, Compare(b, a))
	}

	// Build metadata does not affect precedence.
	assert.Equal(t, 0, Compare(MustParse("1.0.0+a"), MustParse("1.0.0+b")))
}

func TestBump(t *testing.T) {
	tests := []struct {
		from     string
		level    Level
		expected string
	}{
		{"1.2.3", LevelPatch, "1.2.4"},
		{"1.2.3", LevelMinor, "1.3.0"},
		{"1.2.3", LevelMajor, "2.0.0"},
		{"1.2.3", LevelNone, "1.2.3"},

		// Pre-1.0: breaking bumps minor, features bump patch.
		{"0.4.2", LevelMajor, "0.5.0"},
		{"0.4.2", LevelMinor, "0.4.3"},
		{"0.4.2", LevelPatch, "0.4.3"},

		// Prereleases finalize when they already reserve the bump.
		{"1.2.0-rc.1", LevelMinor, "1.2.0"},
		{"1.2.3-rc.1", LevelPatch, "1.2.3"},
		{"1.2.0-rc.1", LevelMajor, "2.0.0"},
		{"2.0.0-beta.3", LevelMajor, "2.0.0"},

		// Build metadata is dropped on bump.
		{"1.2.3+build.9", LevelPatch, "1.2.4"},
	}

	for _, tc := range tests {
		t.Run(tc.from+"_"+tc.level.String(), func(t *testing.T) {
			got := MustParse(tc.from).Bump(tc.level)
			assert.Equal(t, tc.expected, got.String())
		})
	}
}

func TestParseLevel(t *testing.T) {
	for _, name := range []string{"none", "patch", "minor", "major"} {
		l, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, name, l.String())
	}

	_, err := ParseLevel("huge")
	assert.Error(t, err)
}

func TestMaxLevel(t *testing.T) {
	assert.Equal(t, LevelMajor, MaxLevel(LevelPatch, LevelMajor))
	assert.Equal(t, LevelMinor, MaxLevel(LevelMinor, LevelPatch))
	assert.Equal(t, LevelNone, MaxLevel(LevelNone, LevelNone))
}
