// Package semver implements the Semantic Versioning 2.0.0 model used by
// the release planner: parsing, precedence, and bump arithmetic.
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string // dot-separated identifiers, without leading '-'
	Build      string // build metadata, without leading '+'
}

// Parse parses a semantic version string. A single leading 'v' is
// tolerated since git tags commonly carry one.
func Parse(s string) (Version, error) {
	orig := s
	s = strings.TrimPrefix(s, "v")
	if s == "" {
		return Version{}, fmt.Errorf("empty version")
	}

	var v Version
	if i := strings.IndexByte(s, '+'); i >= 0 {
		v.Build = s[i+1:]
		s = s[:i]
		if v.Build == "" {
			return Version{}, fmt.Errorf("invalid version %q: empty build metadata", orig)
		}
		if err := checkIdentifiers(v.Build, false); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", orig, err)
		}
	}
	if i := strings.IndexByte(s, '-'); i >= 0 {
		v.Prerelease = s[i+1:]
		s = s[:i]
		if v.Prerelease == "" {
			return Version{}, fmt.Errorf("invalid version %q: empty prerelease", orig)
		}
		if err := checkIdentifiers(v.Prerelease, true); err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", orig, err)
		}
	}

	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: want major.minor.patch", orig)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := parseNumeric(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: %w", orig, err)
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, nil
}

// MustParse parses a version or panics. For tests and constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// parseNumeric parses a numeric identifier, rejecting leading zeros.
func parseNumeric(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty numeric identifier")
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("leading zero in %q", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	return n, nil
}

// checkIdentifiers validates dot-separated prerelease or build
// identifiers. Numeric prerelease identifiers must not carry leading
// zeros; build identifiers may.
func checkIdentifiers(s string, prerelease bool) error {
	for _, id := range strings.Split(s, ".") {
		if id == "" {
			return fmt.Errorf("empty identifier")
		}
		numeric := true
		for _, c := range id {
			switch {
			case c >= '0' && c <= '9':
			case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-':
				numeric = false
			default:
				return fmt.Errorf("invalid character %q in identifier %q", c, id)
			}
		}
		if prerelease && numeric && len(id) > 1 && id[0] == '0' {
			return fmt.Errorf("leading zero in identifier %q", id)
		}
	}
	return nil
}

// String formats the version without a 'v' prefix.
func (v Version) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		b.WriteByte('-')
		b.WriteString(v.Prerelease)
	}
	if v.Build != "" {
		b.WriteByte('+')
		b.WriteString(v.Build)
	}
	return b.String()
}

// IsZero reports whether v is the zero value (not a valid version per
// se, but useful as an "unset" sentinel).
func (v Version) IsZero() bool {
	return v == Version{}
}

// Compare returns -1, 0, or 1 per SemVer precedence. Build metadata is
// ignored.
func Compare(a, b Version) int {
	if c := cmpInt(a.Major, b.Major); c != 0 {
		return c
	}
	if c := cmpInt(a.Minor, b.Minor); c != 0 {
		return c
	}
	if c := cmpInt(a.Patch, b.Patch); c != 0 {
		return c
	}
	return comparePrerelease(a.Prerelease, b.Prerelease)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrerelease compares prerelease strings. A version without a
// prerelease has higher precedence than one with.
func comparePrerelease(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return 1
	}
	if b == "" {
		return -1
	}

	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareIdentifier(as[i], bs[i]); c != 0 {
			return c
		}
	}
	// All shared identifiers equal: the longer list wins.
	return cmpInt(len(as), len(bs))
}

// compareIdentifier compares one prerelease identifier. Numeric
// identifiers sort below alphanumeric ones.
func compareIdentifier(a, b string) int {
	an, aerr := strconv.Atoi(a)
	bn, berr := strconv.Atoi(b)
	switch {
	case aerr == nil && berr == nil:
		return cmpInt(an, bn)
	case aerr == nil:
		return -1
	case berr == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Less reports whether a has lower precedence than b.
func Less(a, b Version) bool {
	return Compare(a, b) < 0
}
