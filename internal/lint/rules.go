package lint

import (
	"fmt"
	"strings"
	"unicode"

	"relkit/internal/analyze"
	"relkit/internal/gitio"
	"relkit/internal/manifest"
	"relkit/internal/semver"
)

// builtinRules returns the closed rule set in evaluation order.
func builtinRules() []Rule {
	return []Rule{
		&commitConventional{},
		&typeEnum{},
		&scopeEnum{},
		&subjectEmpty{},
		&subjectCase{},
		&headerMaxLength{},
		&bodyLeadingBlank{},
		&footerLeadingBlank{},
		&breakingNeedsNote{},
		&worktreeClean{},
		&noCycles{},
		&privateNotDependency{},
		&versionParseable{},
		&versionDrift{},
		&rangeSatisfiable{},
	}
}

// always is the precondition for rules with no environmental gate.
func always(*Context) (bool, string) { return true, "" }

// eachCommit applies fn to every analyzed commit, skipping merges.
func eachCommit(ctx *Context, fn func(e analyze.Entry) *Finding) []Finding {
	var findings []Finding
	for _, e := range ctx.Analysis.Commits {
		if e.Parsed.Merge {
			continue
		}
		if f := fn(e); f != nil {
			f.Commit = shortHash(e.Git.Hash)
			findings = append(findings, *f)
		}
	}
	return findings
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

// commitConventional flags messages that do not parse as conventional
// commits at all.
type commitConventional struct{}

func (commitConventional) Name() string                         { return "commit-conventional" }
func (commitConventional) DefaultSeverity() Severity            { return SeverityError }
func (commitConventional) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (commitConventional) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if e.Parsed.Conventional {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("message %q is not a conventional commit", gitio.FirstLine(e.Git.Message))}
	})
}

// typeEnum restricts commit types to the configured set.
type typeEnum struct{}

func (typeEnum) Name() string              { return "type-enum" }
func (typeEnum) DefaultSeverity() Severity { return SeverityError }
func (typeEnum) Precondition(ctx *Context) (bool, string) {
	if len(ctx.Config.Lint.TypeEnum) == 0 {
		return false, "no type enum configured"
	}
	return true, ""
}
func (typeEnum) Check(ctx *Context) []Finding {
	allowed := make(map[string]bool, len(ctx.Config.Lint.TypeEnum))
	for _, t := range ctx.Config.Lint.TypeEnum {
		allowed[t] = true
	}
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if !e.Parsed.Conventional || allowed[e.Parsed.Type] {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("type %q is not in the allowed set", e.Parsed.Type)}
	})
}

// scopeEnum restricts scopes to workspace package short names plus the
// configured extras. Unscoped commits always pass.
type scopeEnum struct{}

func (scopeEnum) Name() string              { return "scope-enum" }
func (scopeEnum) DefaultSeverity() Severity { return SeverityWarning }
func (scopeEnum) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.WorkspaceMode && len(ctx.Config.Lint.ScopeEnum) == 0 {
		return false, "single-package repository without a scope enum"
	}
	return true, ""
}
func (scopeEnum) Check(ctx *Context) []Finding {
	allowed := make(map[string]bool)
	for _, p := range ctx.Workspace.Packages {
		allowed[p.Name] = true
		allowed[shortName(p.Name)] = true
	}
	for _, s := range ctx.Config.Lint.ScopeEnum {
		allowed[s] = true
	}
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if e.Parsed.Scope == "" || allowed[e.Parsed.Scope] {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("scope %q matches no workspace package", e.Parsed.Scope)}
	})
}

// shortName strips the npm scope prefix: @acme/core -> core.
func shortName(name string) string {
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// subjectEmpty requires a non-empty subject.
type subjectEmpty struct{}

func (subjectEmpty) Name() string                         { return "subject-empty" }
func (subjectEmpty) DefaultSeverity() Severity            { return SeverityError }
func (subjectEmpty) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (subjectEmpty) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if !e.Parsed.Conventional || strings.TrimSpace(e.Parsed.Subject) != "" {
			return nil
		}
		return &Finding{Message: "subject is empty"}
	})
}

// subjectCase rejects subjects starting with an uppercase letter,
// matching the conventional lower-case style.
type subjectCase struct{}

func (subjectCase) Name() string                         { return "subject-case" }
func (subjectCase) DefaultSeverity() Severity            { return SeverityWarning }
func (subjectCase) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (subjectCase) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if !e.Parsed.Conventional || e.Parsed.Subject == "" {
			return nil
		}
		first := []rune(e.Parsed.Subject)[0]
		if !unicode.IsUpper(first) {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("subject %q should start lower-case", e.Parsed.Subject)}
	})
}

// headerMaxLength caps the header line length.
type headerMaxLength struct{}

func (headerMaxLength) Name() string              { return "header-max-length" }
func (headerMaxLength) DefaultSeverity() Severity { return SeverityWarning }
func (headerMaxLength) Precondition(ctx *Context) (bool, string) {
	if ctx.Config.Lint.HeaderMaxLength == 0 {
		return false, "no header length limit configured"
	}
	return true, ""
}
func (headerMaxLength) Check(ctx *Context) []Finding {
	limit := ctx.Config.Lint.HeaderMaxLength
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if len(e.Parsed.Header) <= limit {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("header is %d characters, limit is %d", len(e.Parsed.Header), limit)}
	})
}

// bodyLeadingBlank requires a blank line between header and body.
type bodyLeadingBlank struct{}

func (bodyLeadingBlank) Name() string                         { return "body-leading-blank" }
func (bodyLeadingBlank) DefaultSeverity() Severity            { return SeverityWarning }
func (bodyLeadingBlank) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (bodyLeadingBlank) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		lines := strings.Split(strings.ReplaceAll(e.Git.Message, "\r\n", "\n"), "\n")
		if len(lines) < 2 || strings.TrimSpace(lines[1]) == "" {
			return nil
		}
		return &Finding{Message: "body must be separated from the header by a blank line"}
	})
}

// footerLeadingBlank requires a blank line before the footer block.
type footerLeadingBlank struct{}

func (footerLeadingBlank) Name() string                         { return "footer-leading-blank" }
func (footerLeadingBlank) DefaultSeverity() Severity            { return SeverityWarning }
func (footerLeadingBlank) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (footerLeadingBlank) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if e.Parsed.Body == "" {
			return nil
		}
		// A footer glued to the body is not recognized as a footer
		// block; it shows up as body text ending in a footer-like
		// line.
		lastBody := lastLine(e.Parsed.Body)
		if !looksLikeFooter(lastBody) {
			return nil
		}
		return &Finding{Message: fmt.Sprintf("footer %q must be separated from the body by a blank line", lastBody)}
	})
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func looksLikeFooter(line string) bool {
	i := strings.Index(line, ": ")
	if i <= 0 {
		return false
	}
	token := line[:i]
	if token == "BREAKING CHANGE" {
		return true
	}
	for _, c := range token {
		if !unicode.IsLetter(c) && !unicode.IsDigit(c) && c != '-' {
			return false
		}
	}
	return true
}

// breakingNeedsNote requires a BREAKING CHANGE footer when the header
// carries a bang.
type breakingNeedsNote struct{}

func (breakingNeedsNote) Name() string                         { return "breaking-needs-note" }
func (breakingNeedsNote) DefaultSeverity() Severity            { return SeverityWarning }
func (breakingNeedsNote) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (breakingNeedsNote) Check(ctx *Context) []Finding {
	return eachCommit(ctx, func(e analyze.Entry) *Finding {
		if !e.Parsed.Breaking || e.Parsed.BreakingNote != "" {
			return nil
		}
		return &Finding{Message: "breaking change has no BREAKING CHANGE footer describing it"}
	})
}

// worktreeClean requires a clean worktree when running under CI, where
// uncommitted changes mean the build mutated its own sources. Local
// runs skip it; the release pipeline enforces cleanliness on its own.
type worktreeClean struct{}

func (worktreeClean) Name() string              { return "worktree-clean" }
func (worktreeClean) DefaultSeverity() Severity { return SeverityError }
func (worktreeClean) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.CI {
		return false, "not running under CI"
	}
	return true, ""
}
func (worktreeClean) Check(ctx *Context) []Finding {
	if ctx.Env.CleanWorktree {
		return nil
	}
	return []Finding{{Message: "worktree has uncommitted changes"}}
}

// noCycles fails on internal dependency cycles.
type noCycles struct{}

func (noCycles) Name() string              { return "no-cycles" }
func (noCycles) DefaultSeverity() Severity { return SeverityError }
func (noCycles) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.WorkspaceMode {
		return false, "single-package repository"
	}
	return true, ""
}
func (noCycles) Check(ctx *Context) []Finding {
	var findings []Finding
	for _, cycle := range ctx.Graph.Cycles() {
		findings = append(findings, Finding{
			Message: fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> ")),
		})
	}
	return findings
}

// privateNotDependency flags publishable packages depending on private
// ones: the published artifact would be uninstallable.
type privateNotDependency struct{}

func (privateNotDependency) Name() string              { return "private-not-dependency" }
func (privateNotDependency) DefaultSeverity() Severity { return SeverityError }
func (privateNotDependency) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.WorkspaceMode {
		return false, "single-package repository"
	}
	return true, ""
}
func (privateNotDependency) Check(ctx *Context) []Finding {
	var findings []Finding
	for _, e := range ctx.Graph.Edges() {
		if e.Group != manifest.GroupDependencies {
			continue // dev/peer deps never ship in the artifact
		}
		from, _ := ctx.Workspace.Get(e.From)
		to, _ := ctx.Workspace.Get(e.To)
		if from == nil || to == nil || !from.Publishable() || to.Publishable() {
			continue
		}
		findings = append(findings, Finding{
			Package: e.From,
			Message: fmt.Sprintf("publishable package depends on private package %s", e.To),
		})
	}
	return findings
}

// versionParseable requires every manifest version to parse as semver.
type versionParseable struct{}

func (versionParseable) Name() string                         { return "version-parseable" }
func (versionParseable) DefaultSeverity() Severity            { return SeverityError }
func (versionParseable) Precondition(ctx *Context) (bool, string) { return always(ctx) }
func (versionParseable) Check(ctx *Context) []Finding {
	var findings []Finding
	for _, p := range ctx.Workspace.Packages {
		if _, err := semver.Parse(p.Manifest.Version); err != nil {
			findings = append(findings, Finding{
				Package: p.Name,
				Message: fmt.Sprintf("version %q is not valid semver", p.Manifest.Version),
			})
		}
	}
	return findings
}

// versionDrift warns when a manifest version disagrees with the last
// release tag, which usually means a manual edit bypassed the
// pipeline.
type versionDrift struct{}

func (versionDrift) Name() string              { return "version-drift" }
func (versionDrift) DefaultSeverity() Severity { return SeverityWarning }
func (versionDrift) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.HasTags {
		return false, "repository has no release tags"
	}
	return true, ""
}
func (versionDrift) Check(ctx *Context) []Finding {
	var findings []Finding
	for _, p := range ctx.Workspace.Packages {
		hist := ctx.Analysis.Histories[p.Name]
		if hist == nil || hist.Initial {
			continue
		}
		current, err := semver.Parse(p.Manifest.Version)
		if err != nil {
			continue // version-parseable owns this
		}
		if semver.Compare(current, hist.LastVersion) != 0 {
			findings = append(findings, Finding{
				Package: p.Name,
				Message: fmt.Sprintf("manifest version %s does not match last release tag %s", p.Manifest.Version, hist.LastTag),
			})
		}
	}
	return findings
}

// rangeSatisfiable requires internal dependency ranges to admit the
// dependency's current version.
type rangeSatisfiable struct{}

func (rangeSatisfiable) Name() string              { return "range-satisfiable" }
func (rangeSatisfiable) DefaultSeverity() Severity { return SeverityError }
func (rangeSatisfiable) Precondition(ctx *Context) (bool, string) {
	if !ctx.Env.WorkspaceMode {
		return false, "single-package repository"
	}
	return true, ""
}
func (rangeSatisfiable) Check(ctx *Context) []Finding {
	var findings []Finding
	for _, e := range ctx.Graph.Edges() {
		to, ok := ctx.Workspace.Get(e.To)
		if !ok {
			continue
		}
		if manifest.RangeSatisfied(e.Range, to.Manifest.Version) {
			continue
		}
		findings = append(findings, Finding{
			Package: e.From,
			Message: fmt.Sprintf("range %s for %s does not admit its current version %s", e.Range, e.To, to.Manifest.Version),
		})
	}
	return findings
}
