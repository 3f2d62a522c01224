// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"vibecodex.dev/vibe-codex/cli"
	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/modules"
)

// hookMarker identifies hook scripts written by install-hooks.
const hookMarker = "# Installed by vibe-codex."

const hookShellScript = `#!/bin/sh
` + hookMarker + `
exec vibe-codex hook %s "$@"
`

var errNotRepo = errors.New("not the root of a git repository")

// gitHooks are the events git runs hooks for. Other events, such as those
// of coding assistants, are not installed as git hooks.
var gitHooks = []string{
	"applypatch-msg", "commit-msg", "post-checkout", "post-commit", "post-merge",
	"post-rewrite", "pre-applypatch", "pre-commit", "pre-merge-commit", "pre-push",
	"pre-rebase", "prepare-commit-msg",
}

// git runs git in dir and returns its trimmed standard output.
func git(ctx context.Context, dir string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s failed: %v:\n%v", strings.Join(args, " "), err, stderr.String())
	}
	return strings.TrimSpace(stdout.String()), nil
}

// stagedFiles returns the files added, copied, modified or renamed in the
// index.
func stagedFiles(ctx context.Context, dir string) ([]string, error) {
	out, err := git(ctx, dir, "diff", "--cached", "--name-only", "--diff-filter=ACMR")
	if err != nil {
		return nil, err
	}
	files := []string{}
	for line := range strings.Lines(out) {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

type hookCmd struct {
	app *app
}

func (c *hookCmd) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	if len(env.Args) == 0 {
		return fmt.Errorf("%w: missing event name", cli.ErrInvalidArgs)
	}
	event, args := env.Args[0], env.Args[1:]

	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	if err := p.load(ctx); err != nil {
		return err
	}

	hc := &modules.Context{Dir: p.root, Args: args}
	if event == "pre-commit" {
		// pre-commit gets no arguments from git; files named on the
		// command line replace the staged ones.
		hc.Args = nil
		hc.Files = args
		if len(args) == 0 {
			if hc.Files, err = stagedFiles(ctx, p.root); err != nil {
				logger.Debug(ctx, "checking the whole project", slog.Any("err", err))
			}
		}
	}
	if branch, err := git(ctx, p.root, "rev-parse", "--abbrev-ref", "HEAD"); err == nil {
		hc.Branch = branch
	}

	hooks := p.modules.GetHooks(event)
	logger.Debug(ctx, "running hooks", slog.String("event", event), slog.Int("hooks", len(hooks)))
	if len(hooks) == 0 {
		return nil
	}
	vs, err := p.modules.RunHooks(ctx, event, hc)
	if err != nil {
		return err
	}
	return printViolations(env.Stdout, vs)
}

type installHooksCmd struct {
	app   *app
	force bool
}

func (c *installHooksCmd) Flags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Replace hooks not written by vibe-codex.")
}

func (c *installHooksCmd) Run(ctx context.Context) error {
	env := cli.GetEnv(ctx)
	p, err := c.app.open(ctx)
	if err != nil {
		return err
	}
	if err := p.load(ctx); err != nil {
		return err
	}

	gitDir := filepath.Join(p.root, ".git")
	if fi, err := os.Stat(gitDir); err != nil || !fi.IsDir() {
		return fmt.Errorf("%s: %w", p.root, errNotRepo)
	}
	hooksDir := filepath.Join(gitDir, "hooks")
	if err := os.MkdirAll(hooksDir, 0o755); err != nil {
		return err
	}

	for _, event := range p.modules.Events() {
		if !slices.Contains(gitHooks, event) {
			logger.Debug(ctx, "not a git hook", slog.String("event", event))
			continue
		}
		hookPath := filepath.Join(hooksDir, event)
		b, err := os.ReadFile(hookPath)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return err
		case !bytes.Contains(b, []byte(hookMarker)) && !c.force:
			logger.Warn(ctx, "keeping existing hook", slog.String("path", hookPath))
			continue
		}
		if err := os.WriteFile(hookPath, fmt.Appendf(nil, hookShellScript, event), 0o755); err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "Installed %s.\n", hookPath)
	}
	return nil
}
