package execute

import (
	"fmt"
	"os/exec"
	"strings"

	"relkit/internal/config"
	"relkit/internal/manifest"
)

// Publisher pushes a built package to the registry. The default is the
// npm CLI; tests substitute their own.
type Publisher interface {
	Publish(dir string, cfg config.PublishConfig) error
}

// NpmPublisher shells out to `npm publish`.
type NpmPublisher struct{}

// Publish runs npm publish in a package directory.
func (NpmPublisher) Publish(dir string, cfg config.PublishConfig) error {
	args := []string{"publish"}
	if cfg.Tag != "" {
		args = append(args, "--tag", cfg.Tag)
	}
	if cfg.Access != "" {
		args = append(args, "--access", cfg.Access)
	}
	if cfg.Registry != "" {
		args = append(args, "--registry", cfg.Registry)
	}

	cmd := exec.Command("npm", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("npm publish in %s: %w\n%s", dir, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// publishSettings merges the workspace publish config with a package's
// own publishConfig block; the manifest wins.
func publishSettings(base config.PublishConfig, m *manifest.Manifest) config.PublishConfig {
	if m.Publish == nil {
		return base
	}
	out := base
	if m.Publish.Registry != "" {
		out.Registry = m.Publish.Registry
	}
	if m.Publish.Access != "" {
		out.Access = m.Publish.Access
	}
	if m.Publish.Tag != "" {
		out.Tag = m.Publish.Tag
	}
	return out
}
