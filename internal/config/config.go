// Package config loads the .relkit.yaml release configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"relkit/internal/commit"
	"relkit/internal/semver"
)

const (
	// FileName is the config file at the workspace root.
	FileName = ".relkit.yaml"
	// StateDir holds relkit's local state (history db, bundles, logs).
	StateDir = ".relkit"
)

// Versioning modes.
const (
	ModeIndependent = "independent"
	ModeFixed       = "fixed"
)

// PublishConfig controls npm publishing.
type PublishConfig struct {
	// Registry overrides the npm registry URL.
	Registry string `yaml:"registry"`
	// Access is npm's --access flag (public|restricted).
	Access string `yaml:"access"`
	// Tag is the npm dist-tag, defaults to "latest".
	Tag string `yaml:"tag"`
}

// LintConfig configures the rule engine.
type LintConfig struct {
	// Rules maps rule name to severity (error|warning|off),
	// overriding each rule's default.
	Rules map[string]string `yaml:"rules"`
	// TypeEnum is the allowed set of commit types.
	TypeEnum []string `yaml:"typeEnum"`
	// ScopeEnum allows extra scopes beyond workspace package names.
	ScopeEnum []string `yaml:"scopeEnum"`
	// HeaderMaxLength caps the commit header length.
	HeaderMaxLength int `yaml:"headerMaxLength"`
}

// Config is the full release configuration.
type Config struct {
	// Mode is independent (per-package versions) or fixed (one
	// version for the whole workspace).
	Mode string `yaml:"mode"`
	// TagFormat is the release tag template. {name} and {version}
	// are substituted. Fixed mode defaults to "v{version}",
	// independent mode to "{name}@{version}".
	TagFormat string `yaml:"tagFormat"`
	// Bumps maps commit types to bump levels, overriding the
	// conventional defaults.
	Bumps map[string]string `yaml:"bumps"`
	// CascadeLevel is the bump applied to dependents of a released
	// package. Defaults to patch.
	CascadeLevel string `yaml:"cascadeLevel"`
	// SkipUnchanged skips releases for packages whose content
	// fingerprint matches their last release.
	SkipUnchanged bool `yaml:"skipUnchanged"`
	// Changelog toggles CHANGELOG.md generation.
	Changelog bool `yaml:"changelog"`
	// Ignore lists doublestar globs whose changes never map to a
	// package (docs, CI config).
	Ignore []string `yaml:"ignore"`

	Publish PublishConfig `yaml:"publish"`
	Lint    LintConfig    `yaml:"lint"`
}

// DefaultConfig returns the configuration used when .relkit.yaml is
// absent.
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeIndependent,
		CascadeLevel: "patch",
		Changelog:    true,
		Publish: PublishConfig{
			Tag: "latest",
		},
		Lint: LintConfig{
			Rules: map[string]string{},
			TypeEnum: []string{
				"feat", "fix", "perf", "refactor", "docs",
				"test", "build", "ci", "chore", "style", "revert",
			},
			HeaderMaxLength: 100,
		},
	}
}

// Load reads the config at root, merged over defaults. A missing file
// returns the defaults.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", FileName, err)
	}
	return cfg, nil
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	if c.Mode != ModeIndependent && c.Mode != ModeFixed {
		return fmt.Errorf("mode must be %q or %q, got %q", ModeIndependent, ModeFixed, c.Mode)
	}
	if _, err := semver.ParseLevel(c.CascadeLevel); err != nil {
		return fmt.Errorf("cascadeLevel: %w", err)
	}
	for typ, level := range c.Bumps {
		if _, err := semver.ParseLevel(level); err != nil {
			return fmt.Errorf("bumps.%s: %w", typ, err)
		}
	}
	for rule, sev := range c.Lint.Rules {
		switch sev {
		case "error", "warning", "off":
		default:
			return fmt.Errorf("lint.rules.%s: unknown severity %q", rule, sev)
		}
	}
	if c.Lint.HeaderMaxLength < 0 {
		return fmt.Errorf("lint.headerMaxLength must not be negative")
	}
	return nil
}

// ResolvedTagFormat returns the tag format, falling back to the mode
// default.
func (c *Config) ResolvedTagFormat() string {
	if c.TagFormat != "" {
		return c.TagFormat
	}
	if c.Mode == ModeFixed {
		return "v{version}"
	}
	return "{name}@{version}"
}

// BumpPolicy converts the configured type mapping into the policy the
// commit package consumes.
func (c *Config) BumpPolicy() (commit.BumpPolicy, error) {
	policy := commit.DefaultBumpPolicy()
	for typ, name := range c.Bumps {
		level, err := semver.ParseLevel(name)
		if err != nil {
			return nil, err
		}
		if level == semver.LevelNone {
			delete(policy, typ)
			continue
		}
		policy[typ] = level
	}
	return policy, nil
}

// CascadeBump returns the configured cascade level.
func (c *Config) CascadeBump() semver.Level {
	level, err := semver.ParseLevel(c.CascadeLevel)
	if err != nil {
		return semver.LevelPatch
	}
	return level
}

// FormatTag renders the release tag for a package version.
func (c *Config) FormatTag(name, version string) string {
	r := strings.NewReplacer("{name}", name, "{version}", version)
	return r.Replace(c.ResolvedTagFormat())
}

// TagMatcher compiles the tag format into a matcher that extracts the
// package name and version from existing tags.
func (c *Config) TagMatcher() (*TagMatcher, error) {
	return NewTagMatcher(c.ResolvedTagFormat())
}

// TagMatcher recognizes release tags produced by a tag format.
type TagMatcher struct {
	re        *regexp.Regexp
	hasName   bool
	nameIndex int
	verIndex  int
}

const versionPattern = `v?\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?`

// NewTagMatcher compiles a tag format containing {version} and
// optionally {name} placeholders.
func NewTagMatcher(format string) (*TagMatcher, error) {
	if !strings.Contains(format, "{version}") {
		return nil, fmt.Errorf("tag format %q lacks {version}", format)
	}

	hasName := strings.Contains(format, "{name}")
	pattern := regexp.QuoteMeta(format)
	pattern = strings.Replace(pattern, regexp.QuoteMeta("{name}"), `(.+?)`, 1)
	pattern = strings.Replace(pattern, regexp.QuoteMeta("{version}"), `(`+versionPattern+`)`, 1)

	re, err := regexp.Compile("^" + pattern + "$")
	if err != nil {
		return nil, fmt.Errorf("compiling tag format %q: %w", format, err)
	}

	m := &TagMatcher{re: re, hasName: hasName}
	if hasName {
		if strings.Index(format, "{name}") < strings.Index(format, "{version}") {
			m.nameIndex, m.verIndex = 1, 2
		} else {
			m.nameIndex, m.verIndex = 2, 1
		}
	} else {
		m.verIndex = 1
	}
	return m, nil
}

// Match extracts the package name and version from a tag. In formats
// without {name} the returned name is empty.
func (m *TagMatcher) Match(tag string) (name, version string, ok bool) {
	groups := m.re.FindStringSubmatch(tag)
	if groups == nil {
		return "", "", false
	}
	if m.hasName {
		name = groups[m.nameIndex]
	}
	return name, groups[m.verIndex], true
}

// Save writes the config to root. Used by `relkit init`.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, FileName), data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}
