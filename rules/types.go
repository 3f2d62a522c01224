// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package rules

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Type distinguishes checks from hooks.
type Type string

// Known types.
const (
	TypeRule Type = "rule"
	TypeHook Type = "hook"
)

var types = []Type{TypeRule, TypeHook}

// Valid reports whether t is a known type.
func (t Type) Valid() bool { return slices.Contains(types, t) }

// ParseType parses s as a [Type].
func ParseType(s string) (Type, error) { return parse("type", s, types) }

// Platform is an environment a rule can be enforced in.
type Platform string

// Known platforms. PlatformAll matches every platform.
const (
	PlatformGit           Platform = "git"
	PlatformClaude        Platform = "claude"
	PlatformGitHubCopilot Platform = "github-copilot"
	PlatformCursor        Platform = "cursor"
	PlatformAll           Platform = "all"
)

var platforms = []Platform{PlatformGit, PlatformClaude, PlatformGitHubCopilot, PlatformCursor, PlatformAll}

// Valid reports whether p is a known platform.
func (p Platform) Valid() bool { return slices.Contains(platforms, p) }

// ParsePlatform parses s as a [Platform].
func ParsePlatform(s string) (Platform, error) { return parse("platform", s, platforms) }

// Category groups rules by concern.
type Category string

// Known categories.
const (
	CategorySecurity      Category = "security"
	CategoryWorkflow      Category = "workflow"
	CategoryQuality       Category = "quality"
	CategoryDocumentation Category = "documentation"
	CategoryAIDevelopment Category = "ai-development"
	CategoryLLMSpecific   Category = "llm-specific"
)

var categories = []Category{
	CategorySecurity,
	CategoryWorkflow,
	CategoryQuality,
	CategoryDocumentation,
	CategoryAIDevelopment,
	CategoryLLMSpecific,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool { return slices.Contains(categories, c) }

// ParseCategory parses s as a [Category].
func ParseCategory(s string) (Category, error) { return parse("category", s, categories) }

// Severity is how serious a rule violation is.
type Severity string

// Known severities, from least to most severe.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severities = []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool { return slices.Contains(severities, s) }

// Rank orders severities: low is 1 and critical is 4. Unknown severities
// rank 0.
func (s Severity) Rank() int { return slices.Index(severities, s) + 1 }

// ParseSeverity parses s as a [Severity].
func ParseSeverity(s string) (Severity, error) { return parse("severity", s, severities) }

func parse[T ~string](what, s string, known []T) (T, error) {
	v := T(s)
	if slices.Contains(known, v) {
		return v, nil
	}
	names := make([]string, len(known))
	for i, k := range known {
		names[i] = string(k)
	}
	return "", fmt.Errorf("unknown %s %q, want one of %s", what, s, strings.Join(names, ", "))
}

// Metadata describes a rule for humans.
type Metadata struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	Category         Category `json:"category"`
	Severity         Severity `json:"severity"`
	Tags             []string `json:"tags"`
	EnabledByDefault bool     `json:"enabled_by_default"`
}

// Implementation tells a platform how to enforce a rule.
type Implementation struct {
	// Hooks lists the events the rule runs on, such as "pre-commit".
	Hooks     []string       `json:"hooks"`
	Script    string         `json:"script,omitempty"`
	Command   string         `json:"command,omitempty"`
	Validator string         `json:"validator,omitempty"`
	Config    map[string]any `json:"config,omitempty"`
	// Files are doublestar patterns selecting the files the rule inspects.
	// An empty list selects every file.
	Files []string `json:"files"`
}

// Matches reports whether file, a slash-separated path relative to the
// project root, is selected by the implementation's file patterns.
func (impl Implementation) Matches(file string) bool {
	if len(impl.Files) == 0 {
		return true
	}
	for _, pattern := range impl.Files {
		if ok, _ := doublestar.Match(pattern, file); ok {
			return true
		}
	}
	return false
}

// Rule is a validated rule or hook definition.
//
// Rules returned by a [Loader] are shared. Callers must not modify them.
type Rule struct {
	ID             string                      `json:"id"`
	Type           Type                        `json:"type"`
	Platforms      []Platform                  `json:"platforms"`
	Metadata       Metadata                    `json:"metadata"`
	Implementation map[Platform]Implementation `json:"implementation"`
	Options        map[string]any              `json:"options,omitempty"`
}

// Supports reports whether r applies to platform p, either directly or
// through [PlatformAll].
func (r *Rule) Supports(p Platform) bool {
	return slices.Contains(r.Platforms, p) || slices.Contains(r.Platforms, PlatformAll)
}

// Summary returns a flattened description of r.
func (r *Rule) Summary() RuleSummary {
	return RuleSummary{
		ID:               r.ID,
		Name:             r.Metadata.Name,
		Type:             r.Type,
		Category:         r.Metadata.Category,
		Severity:         r.Metadata.Severity,
		Platforms:        r.Platforms,
		EnabledByDefault: r.Metadata.EnabledByDefault,
	}
}

// RuleSummary is the catalog entry for a rule.
type RuleSummary struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Type             Type       `json:"type"`
	Category         Category   `json:"category"`
	Severity         Severity   `json:"severity"`
	Platforms        []Platform `json:"platforms"`
	EnabledByDefault bool       `json:"enabled_by_default"`
}

// Supports reports whether the summarized rule applies to platform p.
func (s RuleSummary) Supports(p Platform) bool {
	return slices.Contains(s.Platforms, p) || slices.Contains(s.Platforms, PlatformAll)
}

// RulesetConfig controls how the hooks of a ruleset are executed.
type RulesetConfig struct {
	FailFast bool `json:"failFast"`
	Parallel bool `json:"parallel"`
	// Timeout is in milliseconds.
	Timeout int `json:"timeout"`
}

// TimeoutDuration returns Timeout as a [time.Duration].
func (c RulesetConfig) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

// Ruleset is a named bundle of rules.
//
// A Ruleset returned by [Loader.LoadRuleset] is expanded: Rules and Hooks
// include everything contributed by the rulesets it extends, and
// LoadedRules holds the resolved definitions for Rules.
type Ruleset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Extends     []string      `json:"extends"`
	Rules       []string      `json:"rules"`
	// Hooks are the events a module enforcing the ruleset registers hooks
	// for. Empty means every event its rules name.
	Hooks  []string      `json:"hooks"`
	Config RulesetConfig `json:"config"`
	// Overrides maps a rule id to fields replacing the rule's own. Supported
	// keys are "severity", "enabled_by_default" and "options".
	Overrides map[string]map[string]any `json:"overrides,omitempty"`

	LoadedRules []*Rule `json:"loadedRules,omitempty"`
}

// Summary returns a flattened description of rs.
func (rs *Ruleset) Summary() RulesetSummary {
	return RulesetSummary{
		ID:          rs.ID,
		Name:        rs.Name,
		Description: rs.Description,
		RuleCount:   len(rs.Rules),
		Extends:     rs.Extends,
	}
}

// Apply returns r with the ruleset's override for it applied. Options are
// merged key by key. r is not modified; when there is no override, r itself
// is returned.
func (rs *Ruleset) Apply(r *Rule) *Rule {
	o, ok := rs.Overrides[r.ID]
	if !ok {
		return r
	}
	c := *r
	if s, ok := o["severity"].(string); ok && Severity(s).Valid() {
		c.Metadata.Severity = Severity(s)
	}
	if b, ok := o["enabled_by_default"].(bool); ok {
		c.Metadata.EnabledByDefault = b
	}
	if opts, ok := o["options"].(map[string]any); ok {
		c.Options = maps.Clone(r.Options)
		if c.Options == nil {
			c.Options = make(map[string]any, len(opts))
		}
		maps.Copy(c.Options, opts)
	}
	return &c
}

// RulesetSummary is the catalog entry for a ruleset. RuleCount includes
// rules contributed by extended rulesets.
type RulesetSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	RuleCount   int      `json:"ruleCount"`
	Extends     []string `json:"extends"`
}
