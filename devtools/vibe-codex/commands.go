// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"

	"vibecodex.dev/vibe-codex/cli"
	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/modules"
	"vibecodex.dev/vibe-codex/report"
	"vibecodex.dev/vibe-codex/rules"
	"vibecodex.dev/vibe-codex/schema"
)

// errBlocked is returned when checks find violations of high or critical
// severity.
var errBlocked = errors.New("blocking violations found")

func blocking(vs []modules.Violation) int {
	var n int
	for _, v := range vs {
		if v.Severity.Rank() >= rules.SeverityHigh.Rank() {
			n++
		}
	}
	return n
}

// printViolations writes vs to w and returns errBlocked if any of them
// blocks.
func printViolations(w io.Writer, vs []modules.Violation) error {
	if len(vs) == 0 {
		fmt.Fprintln(w, "No violations.")
		return nil
	}
	for _, v := range vs {
		fmt.Fprintln(w, v)
	}
	n := blocking(vs)
	fmt.Fprintf(w, "\n%d violations, %d blocking.\n", len(vs), n)
	if n > 0 {
		return fmt.Errorf("%w: %d", errBlocked, n)
	}
	return nil
}

type validateCmd struct {
	app   *app
	level int
	watch bool
}

func (c *validateCmd) Flags(f *flag.FlagSet) {
	f.IntVar(&c.level, "level", 0, "Only run modules of at most `level` (1-5). Zero runs all.")
	f.BoolVar(&c.watch, "watch", false, "Validate again whenever the configuration file changes.")
}

func (c *validateCmd) Run(ctx context.Context) error {
	if c.level < 0 || c.level > modules.MaxLevel {
		return fmt.Errorf("%w: -level must be between 0 and %d", cli.ErrInvalidArgs, modules.MaxLevel)
	}
	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	err = c.validate(ctx, p, p.load(ctx))
	if !c.watch {
		return err
	}
	if err != nil {
		logger.Warn(ctx, "validation failed", slog.Any("err", err))
	}

	return config.Watch(ctx, p.cfgPath, func(cfg *config.Config) {
		if err := cfg.Validate(); err != nil {
			logger.Warn(ctx, "ignoring invalid configuration", slog.Any("err", err))
			return
		}
		logger.Info(ctx, "configuration changed, reloading modules")
		p.cfg = cfg
		_, err := p.modules.Reload(ctx, cfg)
		if err := c.validate(ctx, p, err); err != nil {
			logger.Warn(ctx, "validation failed", slog.Any("err", err))
		}
	})
}

// validate reports the result of loading modules and runs their validators.
func (c *validateCmd) validate(ctx context.Context, p *project, loadErr error) error {
	stdout := cli.GetEnv(ctx).Stdout

	var de *modules.DependencyError
	if errors.As(loadErr, &de) {
		for _, e := range de.Errors {
			fmt.Fprintln(stdout, "error:", e)
		}
		return loadErr
	}
	if loadErr != nil {
		return loadErr
	}

	vs, err := p.modules.RunValidators(ctx, &modules.Context{Dir: p.root})
	if err != nil {
		return err
	}
	if c.level > 0 {
		vs = slices.DeleteFunc(vs, func(v modules.Violation) bool {
			m := p.modules.Module(v.Module)
			return m != nil && m.Level > c.level
		})
	}
	return printViolations(stdout, vs)
}

type rulesCmd struct {
	app      *app
	platform string
	category string
	html     string
	json     bool
	enabled  bool
	level    int
	severity string
}

func (c *rulesCmd) Flags(f *flag.FlagSet) {
	f.StringVar(&c.platform, "platform", "", "Only list rules for `platform`.")
	f.StringVar(&c.category, "category", "", "Only list rules in `category`.")
	f.StringVar(&c.html, "html", "", "Write an HTML catalog to `file` (- for stdout).")
	f.BoolVar(&c.json, "json", false, "Print JSON.")
	f.BoolVar(&c.enabled, "enabled", false, "List the rules of the enabled modules instead of every definition.")
	f.IntVar(&c.level, "level", 0, "With -enabled, only list rules of modules of at most `level`.")
	f.StringVar(&c.severity, "severity", "", "With -enabled, only list rules of `severity`.")
}

func (c *rulesCmd) Run(ctx context.Context) error {
	var filter modules.Filter
	var platform rules.Platform
	var err error
	if c.platform != "" {
		if platform, err = rules.ParsePlatform(c.platform); err != nil {
			return fmt.Errorf("%w: %w", cli.ErrInvalidArgs, err)
		}
	}
	if c.category != "" {
		if filter.Category, err = rules.ParseCategory(c.category); err != nil {
			return fmt.Errorf("%w: %w", cli.ErrInvalidArgs, err)
		}
	}
	if c.severity != "" {
		if filter.Severity, err = rules.ParseSeverity(c.severity); err != nil {
			return fmt.Errorf("%w: %w", cli.ErrInvalidArgs, err)
		}
	}
	filter.Level = c.level

	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	list, err := c.list(ctx, p, platform, filter)
	if err != nil {
		return err
	}

	stdout := cli.GetEnv(ctx).Stdout
	switch {
	case c.html != "":
		sets, err := p.rules.ListRulesets(ctx)
		if err != nil {
			return err
		}
		return writeHTML(ctx, stdout, c.html, report.Catalog{Rules: list, Rulesets: sets})
	case c.json:
		return printJSON(stdout, list)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCATEGORY\tSEVERITY\tPLATFORMS\tNAME")
	for _, r := range list {
		platforms := make([]string, len(r.Platforms))
		for i, pl := range r.Platforms {
			platforms[i] = string(pl)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Category, r.Severity, strings.Join(platforms, ","), r.Name)
	}
	return tw.Flush()
}

func (c *rulesCmd) list(ctx context.Context, p *project, platform rules.Platform, filter modules.Filter) ([]rules.RuleSummary, error) {
	if c.enabled {
		if err := p.load(ctx); err != nil {
			return nil, err
		}
		var list []rules.RuleSummary
		for _, r := range p.modules.GetRules(filter) {
			if platform == "" || r.Supports(platform) {
				list = append(list, r.Summary())
			}
		}
		return list, nil
	}

	var (
		list []rules.RuleSummary
		err  error
	)
	switch {
	case platform != "":
		list, err = p.rules.RulesByPlatform(ctx, platform)
	case filter.Category != "":
		list, err = p.rules.RulesByCategory(ctx, filter.Category)
	default:
		list, err = p.rules.ListRules(ctx)
	}
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(list, func(r rules.RuleSummary) bool {
		return (filter.Category != "" && r.Category != filter.Category) ||
			(filter.Severity != "" && r.Severity != filter.Severity)
	}), nil
}

func writeHTML(ctx context.Context, stdout io.Writer, path string, c report.Catalog) error {
	if path == "-" {
		return report.Page(c).Render(ctx, stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.Page(c).Render(ctx, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	logger.Info(ctx, "wrote catalog", slog.String("path", path), slog.Int("rules", len(c.Rules)))
	return nil
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

type rulesetsCmd struct {
	app  *app
	json bool
}

func (c *rulesetsCmd) Flags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print JSON.")
}

func (c *rulesetsCmd) Run(ctx context.Context) error {
	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	sets, err := p.rules.ListRulesets(ctx)
	if err != nil {
		return err
	}
	stdout := cli.GetEnv(ctx).Stdout
	if c.json {
		return printJSON(stdout, sets)
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tRULES\tEXTENDS\tNAME")
	for _, s := range sets {
		extends := strings.Join(s.Extends, ",")
		if extends == "" {
			extends = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.ID, s.RuleCount, extends, s.Name)
	}
	return tw.Flush()
}

type checkCmd struct {
	app *app
}

// errInvalidDefinitions is returned by the check command when some
// definition fails validation.
var errInvalidDefinitions = errors.New("invalid definitions found")

func (c *checkCmd) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) > 1 {
		return fmt.Errorf("%w: check takes at most one directory", cli.ErrInvalidArgs)
	}
	fsys := definitionsDir(ctx, c.app, env.Args)
	if fsys == nil {
		p, err := c.app.open(ctx)
		if err != nil {
			return err
		}
		fsys = p.store()
	}

	var invalid int
	for _, d := range []struct {
		dir  string
		kind schema.Kind
	}{
		{rules.DefinitionsDir, schema.KindRule},
		{rules.RulesetsDir, schema.KindRuleset},
	} {
		res := schema.ValidateDirectory(fsys, d.dir, d.kind)
		fmt.Fprintf(env.Stdout, "%s: %d valid, %d invalid\n", d.dir, len(res.Valid), len(res.Invalid))
		for _, inv := range res.Invalid {
			fmt.Fprintf(env.Stdout, "  %s: %s\n", inv.File, inv.Error)
		}
		invalid += len(res.Invalid)
	}
	if invalid > 0 {
		return fmt.Errorf("%w: %d", errInvalidDefinitions, invalid)
	}
	return nil
}

// definitionsDir returns the store named on the command line, relative to
// the -C directory, or nil if none is named.
func definitionsDir(ctx context.Context, a *app, args []string) fs.FS {
	if len(args) == 0 {
		return nil
	}
	dir := args[0]
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(a.dir, dir)
	}
	logger.Debug(ctx, "checking definition store", slog.String("dir", dir))
	return os.DirFS(dir)
}

type modulesCmd struct {
	app  *app
	json bool
}

func (c *modulesCmd) Flags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print JSON.")
}

func (c *modulesCmd) Run(ctx context.Context) error {
	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	loadErr := p.load(ctx)

	stdout := cli.GetEnv(ctx).Stdout
	var infos []*modules.ModuleInfo
	for _, name := range p.modules.LoadedModules() {
		infos = append(infos, p.modules.GetModuleInfo(name))
	}
	skipped := p.modules.Skipped()

	if c.json {
		if err := printJSON(stdout, struct {
			Modules []*modules.ModuleInfo `json:"modules"`
			Skipped []modules.Skip        `json:"skipped,omitempty"`
		}{infos, skipped}); err != nil {
			return err
		}
		return loadErr
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVERSION\tLEVEL\tRULES\tHOOKS\tVALIDATORS\tDEPENDS ON")
	for _, m := range infos {
		deps := strings.Join(m.Dependencies, ",")
		if deps == "" {
			deps = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n", m.Name, m.Version, m.Level, m.RuleCount, m.HookCount, m.ValidatorCount, deps)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, s := range skipped {
		fmt.Fprintf(stdout, "skipped %s: %s\n", s.Name, s.Reason)
	}
	return loadErr
}

var (
	errConfigExists = errors.New("already exists")
	errNoConfig     = errors.New("no configuration file")
)

type initCmd struct {
	app   *app
	yaml  bool
	force bool
}

func (c *initCmd) Flags(f *flag.FlagSet) {
	f.BoolVar(&c.yaml, "yaml", false, "Write YAML instead of JSON.")
	f.BoolVar(&c.force, "force", false, "Overwrite an existing configuration file.")
}

func (c *initCmd) Run(ctx context.Context) error {
	dir, err := filepath.Abs(c.app.dir)
	if err != nil {
		return err
	}
	if !c.force {
		for _, name := range config.FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return fmt.Errorf("%s %w; use -force to overwrite it", name, errConfigExists)
			}
		}
	}
	name := config.FileNames[0]
	if c.yaml {
		name = config.FileNames[1]
	}
	path := filepath.Join(dir, name)
	if err := config.Default().Save(path); err != nil {
		return err
	}
	fmt.Fprintf(cli.GetEnv(ctx).Stdout, "Wrote %s.\n", path)
	return nil
}

type configCmd struct {
	app *app
}

func (c *configCmd) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) == 0 {
		return fmt.Errorf("%w: want show, enable or disable", cli.ErrInvalidArgs)
	}
	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}

	switch sub, args := env.Args[0], env.Args[1:]; sub {
	case "show":
		if len(args) != 0 {
			return fmt.Errorf("%w: show takes no arguments", cli.ErrInvalidArgs)
		}
		if !p.found {
			fmt.Fprintln(env.Stdout, "# No configuration file, showing defaults.")
		}
		return printJSON(env.Stdout, p.cfg)
	case "enable", "disable":
		if len(args) != 1 {
			return fmt.Errorf("%w: %s takes one module name", cli.ErrInvalidArgs, sub)
		}
		if !p.found {
			return fmt.Errorf("%w in %s; run \"vibe-codex init\" first", errNoConfig, p.root)
		}
		return c.setEnabled(ctx, p, args[0], sub == "enable")
	default:
		return fmt.Errorf("%w: unknown config command %q", cli.ErrInvalidArgs, sub)
	}
}

func (c *configCmd) setEnabled(ctx context.Context, p *project, name string, enabled bool) error {
	if name == config.CoreModule && !enabled {
		return fmt.Errorf("%w: the %s module cannot be disabled", cli.ErrInvalidArgs, config.CoreModule)
	}
	known := slices.Sorted(maps.Keys(modules.Builtins()))
	if _, custom := p.cfg.CustomModules[name]; !custom && !slices.Contains(known, name) {
		return fmt.Errorf("%w: unknown module %q, want one of %s or a custom module", cli.ErrInvalidArgs, name, strings.Join(known, ", "))
	}

	p.cfg.SetEnabled(name, enabled)
	if err := p.cfg.Validate(); err != nil {
		return err
	}
	if err := p.cfg.Save(p.cfgPath); err != nil {
		return err
	}
	state := "Disabled"
	if enabled {
		state = "Enabled"
	}
	logger.Debug(ctx, "saved configuration", slog.String("path", p.cfgPath))
	fmt.Fprintf(cli.GetEnv(ctx).Stdout, "%s module %s.\n", state, name)
	return nil
}
