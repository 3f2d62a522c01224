// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package modules loads the modules enabled by a project configuration.
//
// A module bundles rules with the hooks and validators that enforce them
// and may depend on other modules. Modules come from a registry of
// built-in [Factory] values or from JSON manifests named in the project's
// configuration.
package modules

import (
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/rules"
	"vibecodex.dev/vibe-codex/schema"
)

// Module is an instantiated module.
//
// Modules returned by a [Loader] are shared. Callers must not modify them.
type Module struct {
	Name        string
	Version     string
	Description string
	// Level is the enforcement tier, from 1 (always enforced) to 5.
	Level        int
	Dependencies []string
	// Options are the manifest defaults overridden by project options.
	Options map[string]any
	// Execution controls how the module's hooks and validators run.
	Execution rules.RulesetConfig

	Rules      []*rules.Rule
	Hooks      map[string][]Hook
	Validators map[string]Validator

	// events are the hook events the module's ruleset enables. Empty
	// enables every event its rules name.
	events []string
}

// Info summarizes m.
func (m *Module) Info() *ModuleInfo {
	info := &ModuleInfo{
		Name:           m.Name,
		Version:        m.Version,
		Description:    m.Description,
		Level:          m.Level,
		Dependencies:   m.Dependencies,
		RuleCount:      len(m.Rules),
		ValidatorCount: len(m.Validators),
	}
	for _, hooks := range m.Hooks {
		info.HookCount += len(hooks)
	}
	return info
}

// ModuleInfo is a summary of a loaded module.
type ModuleInfo struct {
	Name           string   `json:"name"`
	Version        string   `json:"version"`
	Description    string   `json:"description"`
	Level          int      `json:"level"`
	Dependencies   []string `json:"dependencies"`
	RuleCount      int      `json:"ruleCount"`
	HookCount      int      `json:"hookCount"`
	ValidatorCount int      `json:"validatorCount"`
}

// Levels bound [Module.Level].
const (
	MinLevel = 1
	MaxLevel = 5
)

// CheckFunc inspects a project and reports what is wrong with it. A
// returned error means the check could not run, not that it failed.
type CheckFunc func(ctx context.Context, c *Context) ([]Violation, error)

// Hook runs when a git or assistant event fires.
type Hook struct {
	Name   string
	Module string
	Event  string
	Run    CheckFunc
}

// Validator checks the whole project on demand.
type Validator struct {
	Name   string
	Module string
	// Rule is the id of the rule the validator enforces, if any.
	Rule string
	Run  CheckFunc
}

// Violation is a single problem found by a hook or validator.
type Violation struct {
	Module   string         `json:"module"`
	Rule     string         `json:"rule,omitempty"`
	Severity rules.Severity `json:"severity"`
	File     string         `json:"file,omitempty"`
	Message  string         `json:"message"`
}

func (v Violation) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s", v.Severity, v.Module)
	if v.Rule != "" {
		sb.WriteString("/" + v.Rule)
	}
	sb.WriteString(": ")
	if v.File != "" {
		sb.WriteString(v.File + ": ")
	}
	sb.WriteString(v.Message)
	return sb.String()
}

// Context is passed to hooks and validators.
type Context struct {
	// Dir is the project root.
	Dir string
	// Files restricts checks to these slash-separated paths relative to Dir.
	// Nil means every file in the project.
	Files []string
	// Args are the arguments of the event, such as the commit message file
	// for commit-msg.
	Args []string
	// Branch is the current git branch, if known.
	Branch string
}

// skipDirs are never searched for files.
var skipDirs = []string{".git", "node_modules", "vendor"}

func skipped(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return slices.Contains(skipDirs, first)
}

// path returns the absolute path of a project file.
func (c *Context) path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Dir, filepath.FromSlash(name))
}

func (c *Context) exists(name string) bool {
	_, err := os.Stat(c.path(name))
	return err == nil
}

// Manifest is the declared part of a module.
type Manifest struct {
	Name         string
	Version      string
	Description  string
	Level        int
	Dependencies []string
	Options      map[string]any
}

// Env is what a [Factory] can use to build a module.
type Env struct {
	Rules      *rules.Loader
	Config     *config.Config
	ProjectDir string
}

// Factory builds a module. The methods are called in the order they are
// declared, after the module's options are merged.
type Factory interface {
	Manifest() Manifest
	Rules(ctx context.Context, env *Env, m *Module) ([]*rules.Rule, error)
	Hooks(env *Env, m *Module) (map[string][]Hook, error)
	Validators(env *Env, m *Module) (map[string]Validator, error)
}

// Initializer is implemented by factories that prepare a module before its
// rules are loaded.
type Initializer interface {
	Initialize(ctx context.Context, env *Env, m *Module) error
}

// instantiate builds a module named name with f.
func instantiate(ctx context.Context, env *Env, name string, f Factory) (*Module, error) {
	man := f.Manifest()
	m := &Module{
		Name:         name,
		Version:      man.Version,
		Description:  man.Description,
		Level:        man.Level,
		Dependencies: slices.Clone(man.Dependencies),
		Options:      maps.Clone(man.Options),
		Execution:    rules.RulesetConfig{Parallel: true, Timeout: schema.DefaultTimeout},
	}
	if m.Options == nil {
		m.Options = make(map[string]any)
	}
	maps.Copy(m.Options, env.Config.Options(name))
	if m.Level < MinLevel || m.Level > MaxLevel {
		return nil, fmt.Errorf("level %d is out of range [%d, %d]", m.Level, MinLevel, MaxLevel)
	}

	var err error
	if in, ok := f.(Initializer); ok {
		if err := in.Initialize(ctx, env, m); err != nil {
			return nil, fmt.Errorf("initializing: %w", err)
		}
	}
	if m.Rules, err = f.Rules(ctx, env, m); err != nil {
		return nil, fmt.Errorf("loading rules: %w", err)
	}
	if m.Hooks, err = f.Hooks(env, m); err != nil {
		return nil, fmt.Errorf("loading hooks: %w", err)
	}
	if m.Validators, err = f.Validators(env, m); err != nil {
		return nil, fmt.Errorf("loading validators: %w", err)
	}
	return m, nil
}
