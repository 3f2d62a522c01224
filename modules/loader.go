// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"path/filepath"
	"slices"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/rules"
	"vibecodex.dev/vibe-codex/syncx"
)

// ErrUnknownModule is the reason a module that is neither built in nor
// listed in the project's custom modules is skipped.
var ErrUnknownModule = errors.New("unknown module")

// State is the lifecycle state of a [Loader].
type State int

// Loader states. A loader goes from Uninitialized to Loading on its first
// load, and between Loading and Ready after that.
const (
	Uninitialized State = iota
	Loading
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Skip records a module that could not be loaded.
type Skip struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Filter selects rules in [Loader.GetRules]. Zero fields match everything.
type Filter struct {
	// Level selects rules of modules with a level of at most Level.
	Level    int
	Category rules.Category
	Severity rules.Severity
}

// Loader loads modules and answers questions about the loaded set. It is
// safe for concurrent use.
type Loader struct {
	rules    *rules.Loader
	registry map[string]Factory
	state    syncx.Protected[*loaderState]
}

type loaderState struct {
	state      State
	projectDir string
	modules    map[string]*Module
	skipped    []Skip
}

// Option configures a [Loader].
type Option func(*Loader)

// WithRegistry replaces the built-in module registry. Use [Builtins] to
// extend it instead.
func WithRegistry(registry map[string]Factory) Option {
	return func(l *Loader) { l.registry = registry }
}

// NewLoader returns a Loader resolving rules with rl.
func NewLoader(rl *rules.Loader, opts ...Option) *Loader {
	l := &Loader{
		rules:    rl,
		registry: Builtins(),
		state:    syncx.Protect(&loaderState{modules: map[string]*Module{}}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadModules replaces the loaded modules with the ones enabled by cfg. The
// core module is always loaded. Custom module paths are resolved relative
// to projectPath.
//
// Modules that cannot be resolved or built are logged, recorded in
// [Loader.Skipped] and left out. If the loaded modules have missing or
// circular dependencies, a [*DependencyError] is returned together with the
// modules.
func (l *Loader) LoadModules(ctx context.Context, cfg *config.Config, projectPath string) (map[string]*Module, error) {
	l.state.WriteAccess(func(s *loaderState) {
		s.state = Loading
		s.projectDir = projectPath
		s.modules = map[string]*Module{}
		s.skipped = nil
	})

	env := &Env{Rules: l.rules, Config: cfg, ProjectDir: projectPath}
	mods := make(map[string]*Module)
	var skipped []Skip
	for _, name := range cfg.EnabledModules() {
		m, err := l.load(ctx, env, name)
		if err != nil {
			logger.Error(ctx, "skipping module", slog.String("module", name), slog.Any("err", err))
			skipped = append(skipped, Skip{Name: name, Reason: err.Error()})
			continue
		}
		logger.Debug(ctx, "loaded module",
			slog.String("module", name),
			slog.Int("rules", len(m.Rules)),
			slog.Int("validators", len(m.Validators)),
		)
		mods[name] = m
	}

	l.state.WriteAccess(func(s *loaderState) {
		s.modules = mods
		s.skipped = skipped
		s.state = Ready
	})

	if res := ValidateDependencies(mods); !res.Valid {
		return maps.Clone(mods), &DependencyError{Errors: res.Errors}
	}
	return maps.Clone(mods), nil
}

func (l *Loader) load(ctx context.Context, env *Env, name string) (*Module, error) {
	f, ok := l.registry[name]
	if !ok {
		path, ok := env.Config.CustomModules[name]
		if !ok {
			return nil, ErrUnknownModule
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(env.ProjectDir, filepath.FromSlash(path))
		}
		var err error
		if f, err = LoadManifest(path); err != nil {
			return nil, err
		}
		if declared := f.Manifest().Name; declared != name {
			return nil, fmt.Errorf("manifest %s declares module %q", path, declared)
		}
	}
	return instantiate(ctx, env, name, f)
}

// Reload discards the loaded modules and loads the ones enabled by cfg,
// resolving custom modules against the project path of the previous load.
func (l *Loader) Reload(ctx context.Context, cfg *config.Config) (map[string]*Module, error) {
	var dir string
	l.state.ReadAccess(func(s *loaderState) { dir = s.projectDir })
	if dir == "" {
		dir = "."
	}
	return l.LoadModules(ctx, cfg, dir)
}

// State returns the lifecycle state of l.
func (l *Loader) State() State {
	var st State
	l.state.ReadAccess(func(s *loaderState) { st = s.state })
	return st
}

// modules returns the loaded modules sorted by name.
func (l *Loader) modules() []*Module {
	var mods []*Module
	l.state.ReadAccess(func(s *loaderState) {
		for _, name := range slices.Sorted(maps.Keys(s.modules)) {
			mods = append(mods, s.modules[name])
		}
	})
	return mods
}

// LoadedModules returns the names of the loaded modules, sorted.
func (l *Loader) LoadedModules() []string {
	names := []string{}
	for _, m := range l.modules() {
		names = append(names, m.Name)
	}
	return names
}

// Skipped returns the modules left out by the last load, in the order they
// were attempted.
func (l *Loader) Skipped() []Skip {
	var skipped []Skip
	l.state.ReadAccess(func(s *loaderState) { skipped = slices.Clone(s.skipped) })
	return skipped
}

// Module returns the loaded module called name, or nil.
func (l *Loader) Module(name string) *Module {
	var m *Module
	l.state.ReadAccess(func(s *loaderState) { m = s.modules[name] })
	return m
}

// GetModuleInfo returns a summary of the loaded module called name, or nil
// if it is not loaded.
func (l *Loader) GetModuleInfo(name string) *ModuleInfo {
	if m := l.Module(name); m != nil {
		return m.Info()
	}
	return nil
}

// GetRules returns the rules of the loaded modules selected by f, in module
// name order. A rule enforced by several modules is returned once.
func (l *Loader) GetRules(f Filter) []*rules.Rule {
	out := []*rules.Rule{}
	seen := make(map[string]bool)
	for _, m := range l.modules() {
		if f.Level > 0 && m.Level > f.Level {
			continue
		}
		for _, r := range m.Rules {
			switch {
			case seen[r.ID]:
			case f.Category != "" && r.Metadata.Category != f.Category:
			case f.Severity != "" && r.Metadata.Severity != f.Severity:
			default:
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// GetHooks returns the hooks registered for event, in module name order.
func (l *Loader) GetHooks(event string) []Hook {
	hooks := []Hook{}
	for _, m := range l.modules() {
		hooks = append(hooks, m.Hooks[event]...)
	}
	return hooks
}

// GetValidators returns the validators of the loaded modules keyed by
// "<module>/<validator>".
func (l *Loader) GetValidators() map[string]Validator {
	vs := make(map[string]Validator)
	for _, m := range l.modules() {
		for name, v := range m.Validators {
			vs[m.Name+"/"+name] = v
		}
	}
	return vs
}

// Events returns the events with at least one hook, sorted.
func (l *Loader) Events() []string {
	seen := make(map[string]bool)
	for _, m := range l.modules() {
		for event, hooks := range m.Hooks {
			if len(hooks) > 0 {
				seen[event] = true
			}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// RunHooks runs the hooks registered for event, module by module, and
// returns every violation found. Each module's hooks run under its
// execution settings. Errors of one module do not stop the others.
func (l *Loader) RunHooks(ctx context.Context, event string, c *Context) ([]Violation, error) {
	var (
		all  []Violation
		errs error
	)
	for _, m := range l.modules() {
		hooks := m.Hooks[event]
		if len(hooks) == 0 {
			continue
		}
		checks := make([]namedCheck, len(hooks))
		for i, h := range hooks {
			checks[i] = namedCheck{name: m.Name + "/" + h.Name, run: h.Run}
		}
		vs, err := execute(ctx, m.Execution, checks, c)
		all = append(all, vs...)
		errs = multierr.Append(errs, err)
	}
	return all, errs
}

// RunValidators runs every validator of the loaded modules against the
// whole project.
func (l *Loader) RunValidators(ctx context.Context, c *Context) ([]Violation, error) {
	var (
		all  []Violation
		errs error
	)
	for _, m := range l.modules() {
		if len(m.Validators) == 0 {
			continue
		}
		var checks []namedCheck
		for _, name := range slices.Sorted(maps.Keys(m.Validators)) {
			checks = append(checks, namedCheck{name: m.Name + "/" + name, run: m.Validators[name].Run})
		}
		vs, err := execute(ctx, m.Execution, checks, c)
		all = append(all, vs...)
		errs = multierr.Append(errs, err)
	}
	return all, errs
}

type namedCheck struct {
	name string
	run  CheckFunc
}

// execute runs checks under cfg. Checks run concurrently when cfg.Parallel
// is set, unless cfg.FailFast asks to stop at the first check reporting a
// violation. Violations are returned in the order of checks.
func execute(ctx context.Context, cfg rules.RulesetConfig, checks []namedCheck, c *Context) ([]Violation, error) {
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.TimeoutDuration())
		defer cancel()
	}

	results := make([][]Violation, len(checks))
	if cfg.Parallel && !cfg.FailFast {
		g, ctx := errgroup.WithContext(ctx)
		for i, ch := range checks {
			g.Go(func() error {
				vs, err := ch.run(ctx, c)
				if err != nil {
					return fmt.Errorf("%s: %w", ch.name, err)
				}
				results[i] = vs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return slices.Concat(results...), err
		}
		return slices.Concat(results...), nil
	}

	for i, ch := range checks {
		vs, err := ch.run(ctx, c)
		if err != nil {
			return slices.Concat(results...), fmt.Errorf("%s: %w", ch.name, err)
		}
		results[i] = vs
		if cfg.FailFast && len(vs) > 0 {
			break
		}
	}
	return slices.Concat(results...), nil
}
