// Package lint evaluates release-compliance rules over the analyzed
// workspace: precondition-gated checks with configurable severities.
package lint

import (
	"fmt"
	"sort"

	"relkit/internal/analyze"
	"relkit/internal/config"
	"relkit/internal/depgraph"
	"relkit/internal/workspace"
)

// Severity of a finding.
type Severity int

const (
	SeverityOff Severity = iota
	SeverityWarning
	SeverityError
)

// ParseSeverity parses a severity name.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "off":
		return SeverityOff, nil
	case "warning":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	default:
		return SeverityOff, fmt.Errorf("unknown severity %q", s)
	}
}

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "off"
	}
}

// Environment is the set of facts preconditions gate on. It is
// computed once per run.
type Environment struct {
	// HasTags is true when the repository has at least one release
	// tag.
	HasTags bool
	// WorkspaceMode is true for multi-package workspaces.
	WorkspaceMode bool
	// CleanWorktree is true when git reports no uncommitted changes.
	CleanWorktree bool
	// CI is true when running under a CI environment variable.
	CI bool
}

// Context carries everything rules inspect.
type Context struct {
	Workspace *workspace.Workspace
	Graph     *depgraph.Graph
	Analysis  *analyze.Analysis
	Config    *config.Config
	Env       Environment
}

// Finding is one rule violation. Severity is stamped by the engine.
type Finding struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"-"`
	// SeverityName is the JSON form of Severity.
	SeverityName string `json:"severity"`
	// Package the finding concerns, if any.
	Package string `json:"package,omitempty"`
	// Commit hash the finding concerns, if any.
	Commit  string `json:"commit,omitempty"`
	Message string `json:"message"`
}

// Skip records a rule whose precondition failed.
type Skip struct {
	Rule   string `json:"rule"`
	Reason string `json:"reason"`
}

// Report is the outcome of a lint run.
type Report struct {
	Findings []Finding `json:"findings"`
	Skipped  []Skip    `json:"skipped"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
}

// Failed reports whether the run should fail. With strict set,
// warnings fail too.
func (r *Report) Failed(strict bool) bool {
	if r.Errors > 0 {
		return true
	}
	return strict && r.Warnings > 0
}

// Rule is one compliance check. The precondition is evaluated once per
// run; rules whose precondition fails are reported as skipped, not
// violated.
type Rule interface {
	Name() string
	DefaultSeverity() Severity
	// Precondition reports applicability and, when false, why not.
	Precondition(ctx *Context) (bool, string)
	Check(ctx *Context) []Finding
}

// Engine runs a fixed rule set with config-driven severities.
type Engine struct {
	rules []Rule
}

// NewEngine creates an engine with the built-in rules.
func NewEngine() *Engine {
	return &Engine{rules: builtinRules()}
}

// Rules returns the engine's rules in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Run evaluates every applicable rule and aggregates the findings.
func (e *Engine) Run(ctx *Context) *Report {
	report := &Report{}

	for _, rule := range e.rules {
		severity := e.severityOf(rule, ctx.Config)
		if severity == SeverityOff {
			continue
		}

		if ok, reason := rule.Precondition(ctx); !ok {
			report.Skipped = append(report.Skipped, Skip{Rule: rule.Name(), Reason: reason})
			continue
		}

		for _, f := range rule.Check(ctx) {
			f.Rule = rule.Name()
			f.Severity = severity
			f.SeverityName = severity.String()
			report.Findings = append(report.Findings, f)
			switch severity {
			case SeverityError:
				report.Errors++
			case SeverityWarning:
				report.Warnings++
			}
		}
	}

	sort.SliceStable(report.Findings, func(i, j int) bool {
		if report.Findings[i].Severity != report.Findings[j].Severity {
			return report.Findings[i].Severity > report.Findings[j].Severity
		}
		return report.Findings[i].Rule < report.Findings[j].Rule
	})
	return report
}

// severityOf resolves a rule's severity: config override first, then
// the rule default.
func (e *Engine) severityOf(rule Rule, cfg *config.Config) Severity {
	if cfg != nil {
		if name, ok := cfg.Lint.Rules[rule.Name()]; ok {
			if sev, err := ParseSeverity(name); err == nil {
				return sev
			}
		}
	}
	return rule.DefaultSeverity()
}
