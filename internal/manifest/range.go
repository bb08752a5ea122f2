package manifest

import (
	"strings"

	"relkit/internal/semver"
)

// RangeSatisfied reports whether a version satisfies a declared range.
// It understands the subset of npm range syntax the release pipeline
// emits: caret, tilde, exact, bare comparison operators, wildcard, and
// workspace protocol ranges. Ranges it cannot evaluate (unions,
// hyphens, x-ranges) count as satisfied rather than producing noise.
func RangeSatisfied(rng, version string) bool {
	rng = strings.TrimSpace(rng)
	if rng == "" || rng == "*" || strings.HasPrefix(rng, "workspace:") {
		return true
	}
	if strings.Contains(rng, " ") || strings.Contains(rng, "||") {
		// Compound ranges are not evaluated; x-ranges fall through
		// to the parse failure below.
		return true
	}

	v, err := semver.Parse(version)
	if err != nil {
		return false
	}

	op := ""
	for _, candidate := range []string{"^", "~", ">=", "<=", ">", "<", "="} {
		if strings.HasPrefix(rng, candidate) {
			op = candidate
			break
		}
	}
	base, err := semver.Parse(strings.TrimPrefix(rng, op))
	if err != nil {
		return true // unparseable range: not ours to judge
	}

	cmp := semver.Compare(v, base)
	switch op {
	case "^":
		if cmp < 0 {
			return false
		}
		if base.Major == 0 {
			// ^0.x pins minor as the compatibility line.
			return v.Major == 0 && v.Minor == base.Minor
		}
		return v.Major == base.Major
	case "~":
		return cmp >= 0 && v.Major == base.Major && v.Minor == base.Minor
	case ">=":
		return cmp >= 0
	case ">":
		return cmp > 0
	case "<=":
		return cmp <= 0
	case "<":
		return cmp < 0
	default: // exact
		return cmp == 0
	}
}
