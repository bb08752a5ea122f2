// Package commit parses conventional commit messages and maps them to
// release bump levels.
package commit

import (
	"regexp"
	"strings"

	"relkit/internal/semver"
)

// Footer is a trailer-style key/value pair at the end of a commit body.
type Footer struct {
	Token string
	Value string
}

// Commit is a parsed commit message plus the git metadata the analyzer
// attaches.
type Commit struct {
	Hash    string
	Type    string
	Scope   string
	Subject string
	Body    string
	Footers []Footer

	// Breaking is set by a '!' after the type/scope or by a
	// BREAKING CHANGE footer.
	Breaking bool
	// BreakingNote carries the BREAKING CHANGE footer text, if any.
	BreakingNote string

	// Conventional reports whether the header matched the
	// conventional-commits grammar. Free-form messages parse with
	// Conventional false and the first line as Subject.
	Conventional bool
	// Merge marks merge commits ("Merge ..." headers or >1 parent).
	Merge bool

	// Header is the raw first line, kept for lint rules.
	Header string
}

// headerRe matches `type(scope)!: subject`. Type is a noun
// ([a-zA-Z]+), scope is anything but parens/newlines.
var headerRe = regexp.MustCompile(`^([a-zA-Z]+)(\(([^()\r\n]*)\))?(!)?: (.*)$`)

// footerRe matches `Token: value` and `Token #value` trailers.
// Tokens are words-with-dashes, or the literal BREAKING CHANGE.
var footerRe = regexp.MustCompile(`^(BREAKING CHANGE|BREAKING-CHANGE|[A-Za-z][A-Za-z0-9-]*)(: | #)(.*)$`)

// Parse parses a full commit message. It never fails: non-conforming
// messages come back with Conventional false so lint policy can decide
// how loud to be about them.
func Parse(message string) Commit {
	message = strings.ReplaceAll(message, "\r\n", "\n")
	lines := strings.Split(message, "\n")
	header := ""
	if len(lines) > 0 {
		header = strings.TrimRight(lines[0], " \t")
	}

	c := Commit{Header: header, Subject: header}
	if strings.HasPrefix(header, "Merge ") {
		c.Merge = true
	}

	m := headerRe.FindStringSubmatch(header)
	if m != nil {
		c.Conventional = true
		c.Type = strings.ToLower(m[1])
		c.Scope = m[3]
		c.Breaking = m[4] == "!"
		c.Subject = m[5]
	}

	body, footers := splitBody(lines[1:])
	c.Body = body
	c.Footers = footers

	for _, f := range footers {
		if f.Token == "BREAKING CHANGE" || f.Token == "BREAKING-CHANGE" {
			c.Breaking = true
			c.BreakingNote = f.Value
		}
	}

	return c
}

// splitBody separates the free-form body from the trailing footer
// block. Footers start at the last paragraph in which every line is
// either a footer or a continuation of one.
func splitBody(lines []string) (string, []Footer) {
	// Drop the blank separator after the header plus trailing blanks.
	for len(lines) > 0 && strings.TrimSpace(lines[0]) == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && strings.TrimSpace(lines[len(lines)-1]) == "" {
		lines = lines[:len(lines)-1]
	}
	if len(lines) == 0 {
		return "", nil
	}

	// Find the start of the last paragraph.
	start := 0
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			start = i + 1
			break
		}
	}

	footers := parseFooters(lines[start:])
	if footers == nil {
		return strings.Join(lines, "\n"), nil
	}

	bodyLines := lines[:start]
	for len(bodyLines) > 0 && strings.TrimSpace(bodyLines[len(bodyLines)-1]) == "" {
		bodyLines = bodyLines[:len(bodyLines)-1]
	}
	return strings.Join(bodyLines, "\n"), footers
}

// parseFooters parses a paragraph as a footer block, or returns nil if
// any line is neither a footer nor a continuation line.
func parseFooters(lines []string) []Footer {
	var footers []Footer
	for _, line := range lines {
		m := footerRe.FindStringSubmatch(line)
		if m != nil {
			value := m[3]
			if m[2] == " #" {
				value = "#" + value
			}
			footers = append(footers, Footer{Token: m[1], Value: value})
			continue
		}
		// Continuation lines extend the previous footer value.
		if len(footers) > 0 && (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) {
			footers[len(footers)-1].Value += "\n" + strings.TrimLeft(line, " \t")
			continue
		}
		return nil
	}
	return footers
}

// BumpPolicy maps commit types to bump levels. Types not present map
// to none.
type BumpPolicy map[string]semver.Level

// DefaultBumpPolicy is the conventional-commits community mapping.
func DefaultBumpPolicy() BumpPolicy {
	return BumpPolicy{
		"feat":   semver.LevelMinor,
		"fix":    semver.LevelPatch,
		"perf":   semver.LevelPatch,
		"revert": semver.LevelPatch,
	}
}

// Bump returns the bump level a commit demands under a policy.
// Breaking changes are always major; merge and non-conventional
// commits never force a bump on their own.
func (c Commit) Bump(policy BumpPolicy) semver.Level {
	if c.Merge || !c.Conventional {
		return semver.LevelNone
	}
	if c.Breaking {
		return semver.LevelMajor
	}
	return policy[c.Type]
}

// FooterValues returns the values of all footers with the given token.
func (c Commit) FooterValues(token string) []string {
	var out []string
	for _, f := range c.Footers {
		if strings.EqualFold(f.Token, token) {
			out = append(out, f.Value)
		}
	}
	return out
}
