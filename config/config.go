// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config reads and writes project configuration files.
//
// A project is configured by a .vibe-codex.json or .vibe-codex.yaml file at
// its root. The format is chosen by the file extension.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// FileNames are the names a configuration file is looked up by, in order of
// preference.
var FileNames = []string{".vibe-codex.json", ".vibe-codex.yaml", ".vibe-codex.yml"}

// CoreModule is the module that is always enabled.
const CoreModule = "core"

// CurrentVersion is the configuration format version written by [Default].
const CurrentVersion = "1.0.0"

// ErrNotFound is returned by [Find] when no configuration file exists.
var ErrNotFound = errors.New("no configuration file found")

// Config is a project configuration.
type Config struct {
	Version string `json:"version" yaml:"version"`
	// Modules maps module names to their settings. A listed module is
	// enabled unless its Enabled field is false.
	Modules map[string]Module `json:"modules" yaml:"modules"`
	// CustomModules maps module names to manifest paths relative to the
	// project root.
	CustomModules map[string]string `json:"customModules,omitempty" yaml:"customModules,omitempty"`
	IssueTracking *IssueTracking    `json:"issueTracking,omitempty" yaml:"issueTracking,omitempty"`
	// CustomRules are rule ids added to the core module.
	CustomRules []string `json:"customRules,omitempty" yaml:"customRules,omitempty"`
	// RulesDir, if set, replaces the built-in definition store with a
	// directory relative to the project root.
	RulesDir string `json:"rulesDir,omitempty" yaml:"rulesDir,omitempty"`
}

// Module holds the settings of one module.
type Module struct {
	Enabled *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// IsEnabled reports whether the module is enabled. A missing Enabled field
// means enabled.
func (m Module) IsEnabled() bool { return m.Enabled == nil || *m.Enabled }

// IssueTracking names the tracker commits should reference.
type IssueTracking struct {
	// Provider is one of "github", "gitlab", "jira" or "linear".
	Provider string `json:"provider" yaml:"provider"`
	// Project is the tracker project key, such as "PROJ" for Jira.
	Project string `json:"project,omitempty" yaml:"project,omitempty"`
}

var providers = []string{"github", "gitlab", "jira", "linear"}

// Default returns the configuration written by "vibe-codex init".
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		Modules: map[string]Module{
			CoreModule: {Enabled: new(true)},
		},
	}
}

// Load reads the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := new(Config)
	if isYAML(path) {
		err = yaml.Unmarshal(b, c)
	} else {
		err = json.Unmarshal(b, c)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if c.Modules == nil {
		c.Modules = make(map[string]Module)
	}
	return c, nil
}

// Save writes c to path in the format selected by its extension.
func (c *Config) Save(path string) error {
	var (
		b   []byte
		err error
	)
	if isYAML(path) {
		b, err = yaml.Marshal(c)
	} else {
		b, err = json.MarshalIndent(c, "", "  ")
		b = append(b, '\n')
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Find looks for a configuration file in dir and its parents and returns
// the path of the first one found. It returns [ErrNotFound] if there is
// none.
func Find(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if fi, err := os.Stat(path); err == nil && !fi.IsDir() {
				return path, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotFound
		}
		dir = parent
	}
}

var namePattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate reports every structural problem with c.
func (c *Config) Validate() error {
	var errs error
	if c.Version == "" {
		errs = multierr.Append(errs, errors.New("version is required"))
	}
	for _, name := range slices.Sorted(maps.Keys(c.Modules)) {
		if !namePattern.MatchString(name) {
			errs = multierr.Append(errs, fmt.Errorf("module name %q must match %s", name, namePattern))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(c.CustomModules)) {
		path := c.CustomModules[name]
		switch {
		case !namePattern.MatchString(name):
			errs = multierr.Append(errs, fmt.Errorf("custom module name %q must match %s", name, namePattern))
		case path == "":
			errs = multierr.Append(errs, fmt.Errorf("custom module %q has no path", name))
		case !filepath.IsLocal(filepath.FromSlash(path)):
			errs = multierr.Append(errs, fmt.Errorf("custom module %q: path %q must be inside the project", name, path))
		}
	}
	for _, id := range c.CustomRules {
		if !namePattern.MatchString(id) {
			errs = multierr.Append(errs, fmt.Errorf("custom rule id %q must match %s", id, namePattern))
		}
	}
	if it := c.IssueTracking; it != nil && !slices.Contains(providers, it.Provider) {
		errs = multierr.Append(errs, fmt.Errorf("issue tracking provider %q must be one of %s", it.Provider, strings.Join(providers, ", ")))
	}
	if c.RulesDir != "" && !filepath.IsLocal(filepath.FromSlash(c.RulesDir)) {
		errs = multierr.Append(errs, fmt.Errorf("rules directory %q must be inside the project", c.RulesDir))
	}
	return errs
}

// Enabled reports whether module name is enabled. The core module is always
// enabled.
func (c *Config) Enabled(name string) bool {
	if name == CoreModule {
		return true
	}
	m, ok := c.Modules[name]
	return ok && m.IsEnabled()
}

// EnabledModules returns the names of the enabled modules, sorted. The core
// module is always included.
func (c *Config) EnabledModules() []string {
	names := []string{CoreModule}
	for name := range c.Modules {
		if name != CoreModule && c.Enabled(name) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// SetEnabled enables or disables module name, keeping its options.
func (c *Config) SetEnabled(name string, enabled bool) {
	if c.Modules == nil {
		c.Modules = make(map[string]Module)
	}
	m := c.Modules[name]
	m.Enabled = new(enabled)
	c.Modules[name] = m
}

// Options returns the project options for module name, or nil.
func (c *Config) Options(name string) map[string]any {
	return c.Modules[name].Options
}
