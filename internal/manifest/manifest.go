// Package manifest reads and writes package.json files, preserving
// fields the release pipeline does not manage.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Filename is the manifest file name inside a package directory.
const Filename = "package.json"

// Dependency groups in the order npm documents them.
const (
	GroupDependencies     = "dependencies"
	GroupDevDependencies  = "devDependencies"
	GroupPeerDependencies = "peerDependencies"
	GroupOptionalDeps     = "optionalDependencies"
)

// knownOrder is the serialization order for managed fields.
var knownOrder = []string{
	"name",
	"version",
	"private",
	"workspaces",
	GroupDependencies,
	GroupDevDependencies,
	GroupPeerDependencies,
	GroupOptionalDeps,
	"publishConfig",
}

// PublishConfig mirrors npm's publishConfig block.
type PublishConfig struct {
	Registry string `json:"registry,omitempty"`
	Access   string `json:"access,omitempty"`
	Tag      string `json:"tag,omitempty"`
}

// Manifest is a parsed package.json.
type Manifest struct {
	Name       string
	Version    string
	Private    bool
	Workspaces []string
	Deps       map[string]map[string]string // group -> name -> range
	Publish    *PublishConfig

	// extra holds fields we do not manage, re-emitted on save.
	extra map[string]json.RawMessage
	path  string
}

// Load reads and parses a package.json file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.path = path
	return m, nil
}

// LoadDir loads the package.json inside dir.
func LoadDir(dir string) (*Manifest, error) {
	return Load(filepath.Join(dir, Filename))
}

// Parse parses manifest content.
func Parse(data []byte) (*Manifest, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	m := &Manifest{
		Deps:  make(map[string]map[string]string),
		extra: make(map[string]json.RawMessage),
	}

	for key, val := range raw {
		switch key {
		case "name":
			if err := json.Unmarshal(val, &m.Name); err != nil {
				return nil, fmt.Errorf("field name: %w", err)
			}
		case "version":
			if err := json.Unmarshal(val, &m.Version); err != nil {
				return nil, fmt.Errorf("field version: %w", err)
			}
		case "private":
			if err := json.Unmarshal(val, &m.Private); err != nil {
				return nil, fmt.Errorf("field private: %w", err)
			}
		case "workspaces":
			if err := unmarshalWorkspaces(val, &m.Workspaces); err != nil {
				return nil, fmt.Errorf("field workspaces: %w", err)
			}
		case GroupDependencies, GroupDevDependencies, GroupPeerDependencies, GroupOptionalDeps:
			var deps map[string]string
			if err := json.Unmarshal(val, &deps); err != nil {
				return nil, fmt.Errorf("field %s: %w", key, err)
			}
			m.Deps[key] = deps
		case "publishConfig":
			m.Publish = &PublishConfig{}
			if err := json.Unmarshal(val, m.Publish); err != nil {
				return nil, fmt.Errorf("field publishConfig: %w", err)
			}
		default:
			m.extra[key] = val
		}
	}

	return m, nil
}

// unmarshalWorkspaces accepts both the array form and yarn's object
// form {"packages": [...]}.
func unmarshalWorkspaces(val json.RawMessage, out *[]string) error {
	if err := json.Unmarshal(val, out); err == nil {
		return nil
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if err := json.Unmarshal(val, &obj); err != nil {
		return err
	}
	*out = obj.Packages
	return nil
}

// Path returns the file path the manifest was loaded from.
func (m *Manifest) Path() string {
	return m.path
}

// Dir returns the package directory.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.path)
}

// DepRange returns the declared range for a dependency across all
// groups, and the group it was found in.
func (m *Manifest) DepRange(name string) (rng, group string, ok bool) {
	for _, g := range []string{GroupDependencies, GroupDevDependencies, GroupPeerDependencies, GroupOptionalDeps} {
		if r, found := m.Deps[g][name]; found {
			return r, g, true
		}
	}
	return "", "", false
}

// SetVersion updates the package version.
func (m *Manifest) SetVersion(version string) {
	m.Version = version
}

// SetDepRange updates the declared range for name in every group that
// lists it. Returns false when no group does.
func (m *Manifest) SetDepRange(name, rng string) bool {
	updated := false
	for _, deps := range m.Deps {
		if _, ok := deps[name]; ok {
			deps[name] = rng
			updated = true
		}
	}
	return updated
}

// Encode renders the manifest as deterministic 2-space-indented JSON
// with a trailing newline: managed fields first in conventional order,
// then unmanaged fields sorted by key.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")

	first := true
	writeField := func(key string, v interface{}) error {
		val, err := json.MarshalIndent(v, "  ", "  ")
		if err != nil {
			return fmt.Errorf("encoding field %s: %w", key, err)
		}
		if !first {
			buf.WriteString(",")
		}
		first = false
		fmt.Fprintf(&buf, "\n  %q: %s", key, val)
		return nil
	}

	for _, key := range knownOrder {
		var v interface{}
		switch key {
		case "name":
			if m.Name == "" {
				continue
			}
			v = m.Name
		case "version":
			if m.Version == "" {
				continue
			}
			v = m.Version
		case "private":
			if !m.Private {
				continue
			}
			v = true
		case "workspaces":
			if len(m.Workspaces) == 0 {
				continue
			}
			v = m.Workspaces
		case "publishConfig":
			if m.Publish == nil {
				continue
			}
			v = m.Publish
		default: // dependency groups; encoding/json sorts map keys
			deps := m.Deps[key]
			if len(deps) == 0 {
				continue
			}
			v = deps
		}
		if err := writeField(key, v); err != nil {
			return nil, err
		}
	}

	extraKeys := make([]string, 0, len(m.extra))
	for k := range m.extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, key := range extraKeys {
		var v interface{}
		if err := json.Unmarshal(m.extra[key], &v); err != nil {
			return nil, fmt.Errorf("re-encoding field %s: %w", key, err)
		}
		if err := writeField(key, v); err != nil {
			return nil, err
		}
	}

	buf.WriteString("\n}\n")
	return buf.Bytes(), nil
}

// Save writes the manifest back to the path it was loaded from.
func (m *Manifest) Save() error {
	if m.path == "" {
		return fmt.Errorf("manifest has no path")
	}
	return m.SaveTo(m.path)
}

// SaveTo writes the manifest to the given path.
func (m *Manifest) SaveTo(path string) error {
	data, err := m.Encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

// BumpRange rewrites a dependency range to point at a new version while
// keeping its operator: ^1.2.3 becomes ^2.0.0, ~1.2.3 becomes ~2.0.0,
// exact stays exact, >=1.0.0 keeps its operator. Workspace protocol
// ranges (workspace:*, workspace:^) are left alone since the package
// manager resolves them at pack time.
func BumpRange(rng, newVersion string) string {
	if strings.HasPrefix(rng, "workspace:") || rng == "*" || rng == "" {
		return rng
	}
	for _, op := range []string{"^", "~", ">=", ">", "<=", "<", "="} {
		if strings.HasPrefix(rng, op) {
			return op + newVersion
		}
	}
	return newVersion
}
