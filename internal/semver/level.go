package semver

import "fmt"

// Level is a release bump level.
type Level int

const (
	LevelNone Level = iota
	LevelPatch
	LevelMinor
	LevelMajor
)

// ParseLevel parses a bump level name.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "none":
		return LevelNone, nil
	case "patch":
		return LevelPatch, nil
	case "minor":
		return LevelMinor, nil
	case "major":
		return LevelMajor, nil
	default:
		return LevelNone, fmt.Errorf("unknown bump level %q", s)
	}
}

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelPatch:
		return "patch"
	case LevelMinor:
		return "minor"
	case LevelMajor:
		return "major"
	default:
		return "none"
	}
}

// MaxLevel returns the higher of two levels.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}

// Bump returns the next version at the given level. Prerelease and
// build metadata are dropped; releasing a prerelease at its own level
// just finalizes it (1.2.0-rc.1 bumped minor gives 1.2.0).
//
// Versions below 1.0.0 follow the community 0.x convention: a major
// bump moves the minor component and a minor bump moves patch, so an
// unstable package never crosses into 1.0.0 without an explicit
// version edit.
func (v Version) Bump(l Level) Version {
	if l == LevelNone {
		return v
	}

	if v.Major == 0 {
		switch l {
		case LevelMajor:
			l = LevelMinor
		case LevelMinor:
			l = LevelPatch
		}
	}

	if v.Prerelease != "" && coversLevel(v, l) {
		return v.stripped()
	}

	switch l {
	case LevelMajor:
		return Version{Major: v.Major + 1}
	case LevelMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

func (v Version) stripped() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
}

// coversLevel reports whether a prerelease version already reserves the
// components a bump at level l would move (1.2.0-rc.1 covers minor and
// patch, 2.0.0-beta covers everything).
func coversLevel(v Version, l Level) bool {
	switch l {
	case LevelMajor:
		return v.Minor == 0 && v.Patch == 0
	case LevelMinor:
		return v.Patch == 0
	default:
		return true
	}
}
