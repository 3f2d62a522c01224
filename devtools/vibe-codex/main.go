// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"vibecodex.dev/vibe-codex/cli"
	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/definitions"
	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/modules"
	"vibecodex.dev/vibe-codex/rules"
)

func main() { cli.Main(new(app)) }

type app struct {
	dir     string
	verbose bool
}

func (a *app) Flags(f *flag.FlagSet) {
	f.StringVar(&a.dir, "C", ".", "Run as if started in `dir`.")
	f.BoolVar(&a.verbose, "v", false, "Log debug messages.")
}

func (a *app) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)

	lg := logger.New(nil)
	lg.Attach(logger.NewCLIHandler(env.Stderr, lg.Level, env.IsTerminal()))
	ctx = logger.Put(ctx, lg)
	if a.verbose {
		logger.LevelVar(ctx).Set(slog.LevelDebug)
	}

	return cli.Commands(
		cli.Command{Name: "validate", Short: "Run the validators of the enabled modules.", App: &validateCmd{app: a}},
		cli.Command{Name: "rules", Short: "List rule definitions.", App: &rulesCmd{app: a}},
		cli.Command{Name: "rulesets", Short: "List rulesets.", App: &rulesetsCmd{app: a}},
		cli.Command{Name: "check", Args: "[dir]", Short: "Validate a definition store against the schemas.", App: &checkCmd{app: a}},
		cli.Command{Name: "modules", Short: "Show the enabled modules.", App: &modulesCmd{app: a}},
		cli.Command{Name: "hook", Args: "<event> [args...]", Short: "Run the hooks registered for an event.", App: &hookCmd{app: a}},
		cli.Command{Name: "install-hooks", Short: "Install git hooks that run vibe-codex.", App: &installHooksCmd{app: a}},
		cli.Command{Name: "init", Short: "Write a default configuration file.", App: &initCmd{app: a}},
		cli.Command{Name: "config", Args: "show | enable <module> | disable <module>", Short: "Show or change the configuration.", App: &configCmd{app: a}},
	).Run(ctx)
}

// project is the configured project the commands work on.
type project struct {
	// root is the directory holding the configuration file, or the
	// working directory when there is none.
	root    string
	cfgPath string
	// found reports whether cfgPath exists.
	found bool
	cfg   *config.Config

	rules   *rules.Loader
	modules *modules.Loader
}

// open finds and loads the project configuration. A project without a
// configuration file gets the defaults.
func (a *app) open(ctx context.Context) (*project, error) {
	dir, err := filepath.Abs(a.dir)
	if err != nil {
		return nil, err
	}
	p := &project{root: dir}

	path, err := config.Find(dir)
	switch {
	case errors.Is(err, config.ErrNotFound):
		logger.Debug(ctx, "no configuration file, using defaults", slog.String("dir", dir))
		p.cfg = config.Default()
		p.cfgPath = filepath.Join(dir, config.FileNames[0])
	case err != nil:
		return nil, err
	default:
		if p.cfg, err = config.Load(path); err != nil {
			return nil, err
		}
		p.root, p.cfgPath, p.found = filepath.Dir(path), path, true
		logger.Debug(ctx, "loaded configuration", slog.String("path", path))
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration %s: %w", p.cfgPath, err)
	}

	p.rules = rules.NewLoader(p.store())
	p.modules = modules.NewLoader(p.rules)
	return p, nil
}

// store returns the definition store of the project.
func (p *project) store() fs.FS {
	if p.cfg.RulesDir == "" {
		return definitions.FS()
	}
	return os.DirFS(filepath.Join(p.root, filepath.FromSlash(p.cfg.RulesDir)))
}

// load loads the enabled modules. Modules that fail to load are reported
// by the module loader and left out.
func (p *project) load(ctx context.Context) error {
	_, err := p.modules.LoadModules(ctx, p.cfg, p.root)
	return err
}
