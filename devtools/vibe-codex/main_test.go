// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vibecodex.dev/vibe-codex/cli"
	"vibecodex.dev/vibe-codex/cli/clitest"
	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/modules"
	"vibecodex.dev/vibe-codex/testutil"
)

func setup(*testing.T) *app { return new(app) }

// newProject writes files into a new directory and returns it.
func newProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, files)
	return dir
}

// configFile returns a configuration with modules enabled or disabled.
func configFile(t *testing.T, modules map[string]bool) string {
	t.Helper()
	cfg := config.Default()
	for name, enabled := range modules {
		cfg.SetEnabled(name, enabled)
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestCommands(t *testing.T) {
	dir := t.TempDir()
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"no command": {
			Args:         []string{"-C", dir},
			WantErr:      cli.ErrInvalidArgs,
			WantInStderr: "install-hooks",
		},
		"unknown command": {
			Args:    []string{"-C", dir, "frobnicate"},
			WantErr: cli.ErrUnknownCommand,
		},
	})
}

func TestRules(t *testing.T) {
	dir := t.TempDir()
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"list": {
			Args:         []string{"-C", dir, "rules"},
			WantInStdout: "no-secrets",
		},
		"platform": {
			Args:         []string{"-C", dir, "rules", "-platform", "claude"},
			WantInStdout: "context-reminder",
		},
		"unknown platform": {
			Args:    []string{"-C", dir, "rules", "-platform", "emacs"},
			WantErr: cli.ErrInvalidArgs,
		},
		"unknown severity": {
			Args:    []string{"-C", dir, "rules", "-severity", "fatal"},
			WantErr: cli.ErrInvalidArgs,
		},
		"json": {
			Args:         []string{"-C", dir, "rules", "-json", "-category", "security"},
			WantInStdout: `"id": "gitignore-required"`,
		},
		"enabled": {
			Args:         []string{"-C", dir, "rules", "-enabled", "-severity", "critical"},
			WantInStdout: "no-secrets",
		},
		"html": {
			Args:         []string{"-C", dir, "rules", "-html", "-"},
			WantInStdout: "<h2>Rulesets</h2>",
		},
	})
}

func TestRulesHTMLFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "catalog.html")
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"write": {
			Args: []string{"-C", dir, "rules", "-html", out},
			CheckFunc: func(t *testing.T, _ *app) {
				b, err := os.ReadFile(out)
				if err != nil {
					t.Fatal(err)
				}
				if !strings.Contains(string(b), "<code>no-secrets</code>") {
					t.Errorf("catalog does not list no-secrets:\n%s", b)
				}
			},
		},
	})
}

func TestRulesets(t *testing.T) {
	dir := t.TempDir()
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"table": {
			Args:         []string{"-C", dir, "rulesets"},
			WantInStdout: "core,testing,documentation",
		},
		"json": {
			Args:         []string{"-C", dir, "rulesets", "-json"},
			WantInStdout: `"id": "recommended"`,
		},
	})
}

func TestCheck(t *testing.T) {
	store := newProject(t, map[string]string{
		"definitions/good.json": `{"id": "good", "type": "rule", "platforms": ["git"], "metadata": {"name": "Good", "description": "d", "category": "security"}, "implementation": {"git": {"validator": "gitignore"}}}`,
		"definitions/bad.json":  `{"id": "bad", "type": "rule"}`,
		"rulesets/core.json":    `{"id": "core", "name": "Core", "rules": ["good"]}`,
	})
	dir := t.TempDir()
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"built-in store": {
			Args:         []string{"-C", dir, "check"},
			WantInStdout: "rulesets: 7 valid, 0 invalid",
		},
		"directory": {
			Args:         []string{"check", store},
			WantErr:      errInvalidDefinitions,
			WantInStdout: "definitions/bad.json",
		},
		"too many arguments": {
			Args:    []string{"check", "a", "b"},
			WantErr: cli.ErrInvalidArgs,
		},
	})
}

func TestModules(t *testing.T) {
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"enabled": {
			Args: []string{"-C", newProject(t, map[string]string{
				".vibe-codex.json": configFile(t, map[string]bool{"testing": true, "github": false}),
			}), "modules"},
			WantInStdout: "testing",
		},
		"json": {
			Args: []string{"-C", newProject(t, map[string]string{
				".vibe-codex.json": configFile(t, map[string]bool{"testing": true}),
			}), "modules", "-json"},
			WantInStdout: `"name": "testing"`,
		},
		"missing dependency": {
			Args: []string{"-C", newProject(t, map[string]string{
				".vibe-codex.json": configFile(t, map[string]bool{"deployment": true}),
			}), "modules"},
			WantErrType:  &modules.DependencyError{},
			WantInStdout: "deployment",
		},
		"unknown module": {
			Args: []string{"-C", newProject(t, map[string]string{
				".vibe-codex.json": configFile(t, map[string]bool{"nope": true}),
			}), "modules"},
			WantInStdout: "skipped nope: unknown module",
			WantInStderr: "skipping module",
		},
	})
}

func TestValidate(t *testing.T) {
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"clean": {
			Args:         []string{"-C", newProject(t, map[string]string{".gitignore": "bin/\n"}), "validate"},
			WantInStdout: "No violations.",
		},
		"blocking": {
			Args:         []string{"-C", newProject(t, map[string]string{"main.go": "package main\n"}), "validate"},
			WantErr:      errBlocked,
			WantInStdout: "[high] core/gitignore-required: no .gitignore at the project root",
		},
		"warnings only": {
			Args: []string{"-C", newProject(t, map[string]string{
				".gitignore":       "bin/\n",
				".vibe-codex.json": configFile(t, map[string]bool{"documentation": true}),
			}), "validate"},
			WantInStdout: "2 violations, 0 blocking.",
		},
		"level": {
			Args: []string{"-C", newProject(t, map[string]string{
				".gitignore":       "bin/\n",
				".vibe-codex.json": configFile(t, map[string]bool{"documentation": true}),
			}), "validate", "-level", "1"},
			WantInStdout: "No violations.",
		},
		"bad level": {
			Args:    []string{"-C", t.TempDir(), "validate", "-level", "9"},
			WantErr: cli.ErrInvalidArgs,
		},
		"dependency error": {
			Args: []string{"-C", newProject(t, map[string]string{
				".vibe-codex.json": configFile(t, map[string]bool{"deployment": true}),
			}), "validate"},
			WantErrType:  &modules.DependencyError{},
			WantInStdout: `error: module "deployment" depends on missing module "testing"`,
		},
	})
}

func TestHook(t *testing.T) {
	dir := newProject(t, map[string]string{
		"BAD_MSG":    "update stuff\n",
		"GOOD_MSG":   "fix(cli): handle missing config (#12)\n",
		"secret.txt": "aws = AKIA" + "ABCDEFGHIJKLMNOP\n",
		"clean.txt":  "hello\n",
	})
	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"bad commit message": {
			Args:         []string{"-C", dir, "hook", "commit-msg", filepath.Join(dir, "BAD_MSG")},
			WantInStdout: "[medium] core/conventional-commits",
		},
		"good commit message": {
			Args:         []string{"-C", dir, "hook", "commit-msg", filepath.Join(dir, "GOOD_MSG")},
			WantInStdout: "No violations.",
		},
		"staged secret": {
			Args:         []string{"-C", dir, "hook", "pre-commit", "secret.txt"},
			WantErr:      errBlocked,
			WantInStdout: "secret.txt: possible AWS access key on line 1",
		},
		"staged clean file": {
			// gitignore-required still fails, but it runs after no-secrets.
			Args:         []string{"-C", dir, "hook", "pre-commit", "clean.txt"},
			WantErr:      errBlocked,
			WantInStdout: "core/gitignore-required",
		},
		"no hooks": {
			Args:               []string{"-C", dir, "hook", "post-merge"},
			WantNothingPrinted: true,
		},
		"missing event": {
			Args:    []string{"-C", dir, "hook"},
			WantErr: cli.ErrInvalidArgs,
		},
	})
}

func TestInstallHooks(t *testing.T) {
	repo := func(files map[string]string) string {
		if files == nil {
			files = map[string]string{}
		}
		files[".git/HEAD"] = "ref: refs/heads/main\n"
		return newProject(t, files)
	}
	hook := func(dir, event string) string {
		b, err := os.ReadFile(filepath.Join(dir, ".git", "hooks", event))
		if err != nil {
			return ""
		}
		return string(b)
	}

	fresh := repo(nil)
	custom := repo(map[string]string{".git/hooks/pre-commit": "#!/bin/sh\necho mine\n"})
	forced := repo(map[string]string{".git/hooks/pre-commit": "#!/bin/sh\necho mine\n"})

	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"fresh": {
			Args:         []string{"-C", fresh, "install-hooks"},
			WantInStdout: filepath.Join(".git", "hooks", "commit-msg"),
			CheckFunc: func(t *testing.T, _ *app) {
				testutil.AssertEqual(t, hook(fresh, "pre-commit"), "#!/bin/sh\n# Installed by vibe-codex.\nexec vibe-codex hook pre-commit \"$@\"\n")
				testutil.AssertEqual(t, hook(fresh, "commit-msg"), "#!/bin/sh\n# Installed by vibe-codex.\nexec vibe-codex hook commit-msg \"$@\"\n")
				testutil.AssertEqual(t, hook(fresh, "pre-push"), "")
			},
		},
		"keeps custom hook": {
			Args:         []string{"-C", custom, "install-hooks"},
			WantInStderr: "keeping existing hook",
			CheckFunc: func(t *testing.T, _ *app) {
				testutil.AssertEqual(t, hook(custom, "pre-commit"), "#!/bin/sh\necho mine\n")
			},
		},
		"force": {
			Args: []string{"-C", forced, "install-hooks", "-force"},
			CheckFunc: func(t *testing.T, _ *app) {
				if !strings.Contains(hook(forced, "pre-commit"), hookMarker) {
					t.Errorf("pre-commit hook was not replaced")
				}
			},
		},
		"not a repository": {
			Args:    []string{"-C", t.TempDir(), "install-hooks"},
			WantErr: errNotRepo,
		},
	})
}

func TestInitAndConfig(t *testing.T) {
	dir := t.TempDir()
	yamlDir := t.TempDir()
	existing := newProject(t, map[string]string{".vibe-codex.json": configFile(t, nil)})
	enabled := newProject(t, map[string]string{".vibe-codex.json": configFile(t, nil)})
	disabled := newProject(t, map[string]string{".vibe-codex.json": configFile(t, map[string]bool{"testing": true})})

	loadConfig := func(t *testing.T, path string) *config.Config {
		t.Helper()
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatal(err)
		}
		return cfg
	}

	clitest.Run(t, setup, map[string]clitest.Case[*app]{
		"init": {
			Args:         []string{"-C", dir, "init"},
			WantInStdout: "Wrote ",
			CheckFunc: func(t *testing.T, _ *app) {
				cfg := loadConfig(t, filepath.Join(dir, ".vibe-codex.json"))
				testutil.AssertEqual(t, cfg.Version, config.CurrentVersion)
				testutil.AssertEqual(t, cfg.EnabledModules(), []string{"core"})
			},
		},
		"init yaml": {
			Args: []string{"-C", yamlDir, "init", "-yaml"},
			CheckFunc: func(t *testing.T, _ *app) {
				testutil.AssertEqual(t, loadConfig(t, filepath.Join(yamlDir, ".vibe-codex.yaml")).EnabledModules(), []string{"core"})
			},
		},
		"init existing": {
			Args:    []string{"-C", existing, "init"},
			WantErr: errConfigExists,
		},
		"show": {
			Args:         []string{"-C", existing, "config", "show"},
			WantInStdout: `"version": "1.0.0"`,
		},
		"show defaults": {
			Args:         []string{"-C", t.TempDir(), "config", "show"},
			WantInStdout: "# No configuration file, showing defaults.",
		},
		"enable": {
			Args:         []string{"-C", enabled, "config", "enable", "testing"},
			WantInStdout: "Enabled module testing.",
			CheckFunc: func(t *testing.T, _ *app) {
				testutil.AssertEqual(t, loadConfig(t, filepath.Join(enabled, ".vibe-codex.json")).EnabledModules(), []string{"core", "testing"})
			},
		},
		"disable": {
			Args:         []string{"-C", disabled, "config", "disable", "testing"},
			WantInStdout: "Disabled module testing.",
			CheckFunc: func(t *testing.T, _ *app) {
				testutil.AssertEqual(t, loadConfig(t, filepath.Join(disabled, ".vibe-codex.json")).EnabledModules(), []string{"core"})
			},
		},
		"disable core": {
			Args:    []string{"-C", existing, "config", "disable", "core"},
			WantErr: cli.ErrInvalidArgs,
		},
		"unknown module": {
			Args:    []string{"-C", existing, "config", "enable", "nope"},
			WantErr: cli.ErrInvalidArgs,
		},
		"no config": {
			Args:    []string{"-C", t.TempDir(), "config", "enable", "testing"},
			WantErr: errNoConfig,
		},
		"no subcommand": {
			Args:    []string{"-C", existing, "config"},
			WantErr: cli.ErrInvalidArgs,
		},
	})
}

func TestOpen(t *testing.T) {
	root := newProject(t, map[string]string{
		".vibe-codex.json":     configFile(t, map[string]bool{"testing": true}),
		"src/pkg/a.go":         "package pkg\n",
		"bad/.vibe-codex.json": `{"modules": {}}`,
	})

	t.Run("parent directory", func(t *testing.T) {
		p, err := (&app{dir: filepath.Join(root, "src", "pkg")}).open(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		testutil.AssertEqual(t, p.root, root)
		testutil.AssertEqual(t, p.found, true)
		testutil.AssertEqual(t, p.cfg.EnabledModules(), []string{"core", "testing"})
	})

	t.Run("invalid", func(t *testing.T) {
		_, err := (&app{dir: filepath.Join(root, "bad")}).open(t.Context())
		if err == nil || !strings.Contains(err.Error(), "version is required") {
			t.Fatalf("want version error, got %v", err)
		}
	})

	t.Run("rules directory", func(t *testing.T) {
		dir := newProject(t, map[string]string{
			".vibe-codex.json":             `{"version": "1.0.0", "modules": {}, "rulesDir": "policy"}`,
			"policy/rulesets/core.json":    `{"id": "core", "name": "Core", "rules": ["only"]}`,
			"policy/definitions/only.json": `{"id": "only", "type": "rule", "platforms": ["all"], "metadata": {"name": "Only", "description": "d", "category": "quality"}, "implementation": {"all": {"validator": "readme"}}}`,
		})
		p, err := (&app{dir: dir}).open(t.Context())
		if err != nil {
			t.Fatal(err)
		}
		if err := p.load(t.Context()); err != nil {
			t.Fatal(err)
		}
		rs := p.modules.GetRules(modules.Filter{})
		if len(rs) != 1 || rs[0].ID != "only" {
			t.Fatalf("want only the project's rule, got %d rules", len(rs))
		}
	})
}
