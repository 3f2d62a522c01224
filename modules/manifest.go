// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/mod/semver"

	"vibecodex.dev/vibe-codex/rules"
	"vibecodex.dev/vibe-codex/schema"
)

// manifestFile is the JSON form of a custom module.
type manifestFile struct {
	Name         string                   `json:"name"`
	Version      string                   `json:"version"`
	Description  string                   `json:"description"`
	Level        int                      `json:"level"`
	Dependencies []string                 `json:"dependencies"`
	Options      map[string]any           `json:"options"`
	Rules        []string                 `json:"rules"`
	Rulesets     []string                 `json:"rulesets"`
	Hooks        map[string][]commandSpec `json:"hooks"`
	Validators   map[string]commandSpec   `json:"validators"`
}

// commandSpec is a hook or validator implemented by an external program.
type commandSpec struct {
	Name string   `json:"name"`
	Run  []string `json:"run"`
	// Severity of the violation reported when the program fails. The
	// default is high.
	Severity rules.Severity `json:"severity,omitempty"`
}

func (s commandSpec) severity() rules.Severity {
	if s.Severity == "" {
		return rules.SeverityHigh
	}
	return s.Severity
}

// fileModule builds a module from a manifest file.
type fileModule struct {
	path string
	mf   manifestFile
}

// LoadManifest reads the custom module manifest at path.
func LoadManifest(path string) (Factory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var mf manifestFile
	if err := dec.Decode(&mf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if mf.Level == 0 {
		mf.Level = MaxLevel
	}
	if err := mf.validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}
	return &fileModule{path: path, mf: mf}, nil
}

// canonicalVersion returns v with the "v" prefix semver expects.
func canonicalVersion(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

func (mf *manifestFile) validate() error {
	var errs error
	if !schema.IDPattern.MatchString(mf.Name) {
		errs = multierr.Append(errs, fmt.Errorf("name %q must match %s", mf.Name, schema.IDPattern))
	}
	if !semver.IsValid(canonicalVersion(mf.Version)) {
		errs = multierr.Append(errs, fmt.Errorf("version %q is not a semantic version", mf.Version))
	}
	if mf.Level < MinLevel || mf.Level > MaxLevel {
		errs = multierr.Append(errs, fmt.Errorf("level %d is out of range [%d, %d]", mf.Level, MinLevel, MaxLevel))
	}
	for _, event := range slices.Sorted(maps.Keys(mf.Hooks)) {
		for i, spec := range mf.Hooks[event] {
			errs = multierr.Append(errs, spec.validate(fmt.Sprintf("hooks.%s[%d]", event, i)))
		}
	}
	for _, name := range slices.Sorted(maps.Keys(mf.Validators)) {
		errs = multierr.Append(errs, mf.Validators[name].validate("validators."+name))
	}
	return errs
}

func (s commandSpec) validate(where string) error {
	var errs error
	if len(s.Run) == 0 || s.Run[0] == "" {
		errs = multierr.Append(errs, fmt.Errorf("%s: run must name a program", where))
	}
	if s.Severity != "" && !s.Severity.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("%s: unknown severity %q", where, s.Severity))
	}
	return errs
}

func (f *fileModule) Manifest() Manifest {
	return Manifest{
		Name:         f.mf.Name,
		Version:      semver.Canonical(canonicalVersion(f.mf.Version)),
		Description:  f.mf.Description,
		Level:        f.mf.Level,
		Dependencies: f.mf.Dependencies,
		Options:      f.mf.Options,
	}
}

// Initialize checks that every program the module runs can be found.
// Programs named by a path are looked up relative to the project.
func (f *fileModule) Initialize(_ context.Context, env *Env, _ *Module) error {
	var specs []commandSpec
	for _, event := range slices.Sorted(maps.Keys(f.mf.Hooks)) {
		specs = append(specs, f.mf.Hooks[event]...)
	}
	for _, name := range slices.Sorted(maps.Keys(f.mf.Validators)) {
		specs = append(specs, f.mf.Validators[name])
	}

	var errs error
	for _, spec := range specs {
		prog := spec.Run[0]
		if strings.ContainsRune(prog, '/') {
			if !filepath.IsAbs(prog) {
				prog = filepath.Join(env.ProjectDir, prog)
			}
			if _, err := os.Stat(prog); err != nil {
				errs = multierr.Append(errs, err)
			}
			continue
		}
		if _, err := exec.LookPath(prog); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (f *fileModule) Rules(ctx context.Context, env *Env, m *Module) ([]*rules.Rule, error) {
	out, err := env.Rules.LoadRules(ctx, f.mf.Rules)
	if err != nil {
		return nil, err
	}
	for _, id := range f.mf.Rulesets {
		rs, err := env.Rules.LoadRuleset(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range rs.LoadedRules {
			out = append(out, rs.Apply(r))
		}
	}
	seen := make(map[string]bool)
	out = slices.DeleteFunc(out, func(r *rules.Rule) bool {
		dup := seen[r.ID]
		seen[r.ID] = true
		return dup
	})
	if t, ok := intValue(m.Options["timeout"]); ok && t >= 1 {
		m.Execution.Timeout = t
	}
	return out, nil
}

func (f *fileModule) Hooks(env *Env, m *Module) (map[string][]Hook, error) {
	hooks := ruleHooks(m)
	for _, event := range slices.Sorted(maps.Keys(f.mf.Hooks)) {
		for _, spec := range f.mf.Hooks[event] {
			name := spec.Name
			if name == "" {
				name = command(spec.Run).String()
			}
			hooks[event] = append(hooks[event], Hook{
				Name:   name,
				Module: m.Name,
				Event:  event,
				Run:    f.commandCheck(m, spec),
			})
		}
	}
	return hooks, nil
}

func (f *fileModule) Validators(env *Env, m *Module) (map[string]Validator, error) {
	vs := ruleValidators(m)
	for _, name := range slices.Sorted(maps.Keys(f.mf.Validators)) {
		if _, dup := vs[name]; dup {
			return nil, fmt.Errorf("validator %q is defined by both a rule and the manifest", name)
		}
		vs[name] = Validator{Name: name, Module: m.Name, Run: f.commandCheck(m, f.mf.Validators[name])}
	}
	return vs, nil
}

func (f *fileModule) commandCheck(m *Module, spec commandSpec) CheckFunc {
	return command(spec.Run).check(func(msg string) Violation {
		return Violation{Module: m.Name, Severity: spec.severity(), Message: msg}
	})
}
