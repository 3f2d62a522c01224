// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package rules loads rule and ruleset definitions from a definition store.
//
// A store is an [fs.FS] laid out as definitions/<id>.json (rules and hooks)
// and rulesets/<id>.json. Every definition is checked with the schema
// package before use, and validated values are cached per [Loader] until
// [Loader.ClearCache] is called.
package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"vibecodex.dev/vibe-codex/logger"
	"vibecodex.dev/vibe-codex/schema"
	"vibecodex.dev/vibe-codex/syncx"
)

// Directories of a definition store.
const (
	DefinitionsDir = "definitions"
	RulesetsDir    = "rulesets"
)

// loadLimit bounds concurrent file reads in LoadRules.
const loadLimit = 8

// Loader loads definitions from a store. It is safe for concurrent use.
//
// Concurrent loads of the same id may read the file more than once; all
// callers still observe the same cached value.
type Loader struct {
	fsys  fs.FS
	cache atomic.Pointer[cache]
}

type cache struct {
	rules    syncx.Cache[string, *Rule]
	rulesets syncx.Cache[string, *Ruleset]
}

// NewLoader returns a Loader reading from fsys.
func NewLoader(fsys fs.FS) *Loader {
	l := &Loader{fsys: fsys}
	l.cache.Store(new(cache))
	return l
}

// FS returns the store l reads from.
func (l *Loader) FS() fs.FS { return l.fsys }

// ClearCache drops every cached rule and ruleset. Later loads read the store
// again.
func (l *Loader) ClearCache() { l.cache.Store(new(cache)) }

// LoadRule returns the rule with the given id.
//
// It returns a [*NotFoundError] if the definition does not exist and an
// [*InvalidError] if it fails validation.
func (l *Loader) LoadRule(ctx context.Context, id string) (*Rule, error) {
	return l.loadRule(ctx, l.cache.Load(), id)
}

func (l *Loader) loadRule(ctx context.Context, c *cache, id string) (*Rule, error) {
	if r, ok := c.rules.Load(id); ok {
		return r, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := new(Rule)
	if err := l.read(schema.KindRule, DefinitionsDir, id, r); err != nil {
		return nil, err
	}
	r, _ = c.rules.LoadOrStore(id, r)
	logger.Debug(ctx, "loaded rule", slog.String("id", id))
	return r, nil
}

// LoadRules loads ids concurrently. The result is in the order of ids. If
// any load fails, the first error is returned.
func (l *Loader) LoadRules(ctx context.Context, ids []string) ([]*Rule, error) {
	return l.loadRules(ctx, l.cache.Load(), ids)
}

func (l *Loader) loadRules(ctx context.Context, c *cache, ids []string) ([]*Rule, error) {
	rules := make([]*Rule, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadLimit)
	for i, id := range ids {
		g.Go(func() error {
			r, err := l.loadRule(ctx, c, id)
			if err != nil {
				return err
			}
			rules[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadRuleset returns the expanded ruleset with the given id.
//
// Rules and hooks of extended rulesets come first, in the order the parents
// are declared, followed by the ruleset's own. Each id keeps the position of
// its first occurrence. Overrides of the ruleset take precedence over those
// it inherits.
//
// Repeated calls return the same *Ruleset until the cache is cleared. A
// ruleset that extends itself fails with [ErrCircularExtension].
func (l *Loader) LoadRuleset(ctx context.Context, id string) (*Ruleset, error) {
	return l.loadRuleset(ctx, l.cache.Load(), id, nil)
}

// loadRuleset expands id. chain holds the rulesets currently being expanded,
// outermost first.
func (l *Loader) loadRuleset(ctx context.Context, c *cache, id string, chain []string) (*Ruleset, error) {
	if rs, ok := c.rulesets.Load(id); ok {
		return rs, nil
	}
	if slices.Contains(chain, id) {
		return nil, fmt.Errorf("%w: %s", ErrCircularExtension, strings.Join(append(chain, id), " -> "))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	chain = append(slices.Clip(chain), id)

	rs := new(Ruleset)
	if err := l.read(schema.KindRuleset, RulesetsDir, id, rs); err != nil {
		return nil, err
	}

	var (
		ruleIDs   []string
		hooks     []string
		overrides = make(map[string]map[string]any)
	)
	for _, parentID := range rs.Extends {
		parent, err := l.loadRuleset(ctx, c, parentID, chain)
		if err != nil {
			return nil, err
		}
		ruleIDs = appendUnique(ruleIDs, parent.Rules...)
		hooks = appendUnique(hooks, parent.Hooks...)
		maps.Copy(overrides, parent.Overrides)
	}
	rs.Rules = appendUnique(ruleIDs, rs.Rules...)
	rs.Hooks = appendUnique(hooks, rs.Hooks...)
	maps.Copy(overrides, rs.Overrides)
	if len(overrides) > 0 {
		rs.Overrides = overrides
	}

	loaded, err := l.loadRules(ctx, c, rs.Rules)
	if err != nil {
		return nil, fmt.Errorf("ruleset %q: %w", id, err)
	}
	rs.LoadedRules = loaded

	rs, _ = c.rulesets.LoadOrStore(id, rs)
	logger.Debug(ctx, "loaded ruleset", slog.String("id", id), slog.Int("rules", len(rs.Rules)))
	return rs, nil
}

// appendUnique appends the elements of src not already in dst.
func appendUnique(dst []string, src ...string) []string {
	if dst == nil {
		dst = []string{}
	}
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

// read loads, validates and decodes dir/<id>.json into v.
func (l *Loader) read(kind schema.Kind, dir, id string, v any) error {
	if !schema.IDPattern.MatchString(id) {
		return &InvalidError{Kind: kind, ID: id, Message: fmt.Sprintf("id must match %s", schema.IDPattern)}
	}
	name := path.Join(dir, id+".json")
	data, err := fs.ReadFile(l.fsys, name)
	if errors.Is(err, fs.ErrNotExist) {
		return &NotFoundError{Kind: kind, ID: id, Err: err}
	}
	if err != nil {
		return fmt.Errorf("reading %s %q: %w", kind, id, err)
	}

	res := schema.ValidateBytes(data, kind)
	if !res.Valid {
		return &InvalidError{Kind: kind, ID: id, File: name, Message: res.Error}
	}
	if got, _ := res.Value["id"].(string); got != id {
		return &InvalidError{Kind: kind, ID: id, File: name, Message: fmt.Sprintf("id %q does not match file name", got)}
	}

	b, err := json.Marshal(res.Value)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return &InvalidError{Kind: kind, ID: id, File: name, Message: err.Error()}
	}
	return nil
}

// ListRules returns a summary of every rule in the store, sorted by id.
// Definitions that fail to load are skipped with a warning.
func (l *Loader) ListRules(ctx context.Context) ([]RuleSummary, error) {
	ids, err := l.ids(DefinitionsDir)
	if err != nil {
		return nil, err
	}
	summaries := []RuleSummary{}
	for _, id := range ids {
		r, err := l.LoadRule(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn(ctx, "skipping rule definition", slog.String("id", id), slog.Any("err", err))
			continue
		}
		summaries = append(summaries, r.Summary())
	}
	slices.SortFunc(summaries, func(a, b RuleSummary) int { return strings.Compare(a.ID, b.ID) })
	return summaries, nil
}

// ListRulesets returns a summary of every ruleset in the store, sorted by
// id. Rulesets that fail to load are skipped with a warning.
func (l *Loader) ListRulesets(ctx context.Context) ([]RulesetSummary, error) {
	ids, err := l.ids(RulesetsDir)
	if err != nil {
		return nil, err
	}
	summaries := []RulesetSummary{}
	for _, id := range ids {
		rs, err := l.LoadRuleset(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			logger.Warn(ctx, "skipping ruleset definition", slog.String("id", id), slog.Any("err", err))
			continue
		}
		summaries = append(summaries, rs.Summary())
	}
	slices.SortFunc(summaries, func(a, b RulesetSummary) int { return strings.Compare(a.ID, b.ID) })
	return summaries, nil
}

// RulesByPlatform returns the rules that apply to p. Rules declared for
// [PlatformAll] always match.
func (l *Loader) RulesByPlatform(ctx context.Context, p Platform) ([]RuleSummary, error) {
	return l.filter(ctx, func(s RuleSummary) bool { return s.Supports(p) })
}

// RulesByCategory returns the rules in category c.
func (l *Loader) RulesByCategory(ctx context.Context, c Category) ([]RuleSummary, error) {
	return l.filter(ctx, func(s RuleSummary) bool { return s.Category == c })
}

func (l *Loader) filter(ctx context.Context, keep func(RuleSummary) bool) ([]RuleSummary, error) {
	all, err := l.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(s RuleSummary) bool { return !keep(s) }), nil
}

// ids returns the ids of the *.json files in dir, sorted.
func (l *Loader) ids(dir string) ([]string, error) {
	files, err := schema.JSONFiles(l.fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = strings.TrimSuffix(path.Base(f), ".json")
	}
	return ids, nil
}
