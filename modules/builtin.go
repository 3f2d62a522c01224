// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"

	"vibecodex.dev/vibe-codex/config"
	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/rules"
)

// Builtins returns a new registry of the built-in modules. Each built-in
// module enforces the ruleset of the same name.
func Builtins() map[string]Factory {
	return map[string]Factory{
		config.CoreModule: builtin{
			manifest: Manifest{
				Name:        config.CoreModule,
				Description: "Security and workflow rules every project gets.",
				Level:       1,
				Options:     map[string]any{"maxScanBytes": 1 << 20},
			},
			customRules: true,
		},
		"github": builtin{
			manifest: Manifest{
				Name:         "github",
				Description:  "Pull request, CI and issue conventions for GitHub.",
				Level:        2,
				Dependencies: []string{config.CoreModule},
			},
			init: issuePattern,
		},
		"testing": builtin{
			manifest: Manifest{
				Name:         "testing",
				Description:  "Tests exist and pass before pushing.",
				Level:        3,
				Dependencies: []string{config.CoreModule},
			},
		},
		"deployment": builtin{
			manifest: Manifest{
				Name:         "deployment",
				Description:  "Deployment descriptors for tested code.",
				Level:        4,
				Dependencies: []string{config.CoreModule, "testing"},
			},
		},
		"documentation": builtin{
			manifest: Manifest{
				Name:         "documentation",
				Description:  "README and changelog upkeep.",
				Level:        5,
				Dependencies: []string{config.CoreModule},
			},
		},
		"patterns": builtin{
			manifest: Manifest{
				Name:         "patterns",
				Description:  "Code organization and assistant conventions.",
				Level:        5,
				Dependencies: []string{config.CoreModule},
			},
		},
	}
}

const builtinVersion = "1.0.0"

type builtin struct {
	manifest Manifest
	// customRules adds the project's custom rules to the module.
	customRules bool
	init        func(env *Env, m *Module) error
}

func (b builtin) Manifest() Manifest {
	m := b.manifest
	m.Version = builtinVersion
	return m
}

func (b builtin) Initialize(_ context.Context, env *Env, m *Module) error {
	if b.init == nil {
		return nil
	}
	return b.init(env, m)
}

func (b builtin) Rules(ctx context.Context, env *Env, m *Module) ([]*rules.Rule, error) {
	rs, err := env.Rules.LoadRuleset(ctx, b.manifest.Name)
	if err != nil {
		return nil, err
	}
	m.Execution = rs.Config
	m.events = rs.Hooks

	out := make([]*rules.Rule, 0, len(rs.LoadedRules))
	for _, r := range rs.LoadedRules {
		out = append(out, rs.Apply(r))
	}
	if !b.customRules {
		return out, nil
	}
	for _, id := range env.Config.CustomRules {
		if slices.ContainsFunc(out, func(r *rules.Rule) bool { return r.ID == id }) {
			continue
		}
		r, err := env.Rules.LoadRule(ctx, id)
		if err != nil {
			logger.Warn(ctx, "skipping custom rule", slog.String("id", id), slog.Any("err", err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (b builtin) Hooks(_ *Env, m *Module) (map[string][]Hook, error) {
	return ruleHooks(m), nil
}

func (b builtin) Validators(_ *Env, m *Module) (map[string]Validator, error) {
	return ruleValidators(m), nil
}

// issuePattern derives the issue reference pattern from the project's issue
// tracker unless the module options set one.
func issuePattern(env *Env, m *Module) error {
	if _, ok := m.Options["issuePattern"]; ok {
		return nil
	}
	it := env.Config.IssueTracking
	if it == nil {
		return nil
	}
	switch it.Provider {
	case "jira", "linear":
		if it.Project == "" {
			return fmt.Errorf("issue tracker %q needs a project key", it.Provider)
		}
		m.Options["issuePattern"] = `\b` + regexp.QuoteMeta(it.Project) + `-[0-9]+\b`
	case "github", "gitlab":
		m.Options["issuePattern"] = `#[0-9]+`
	}
	return nil
}
