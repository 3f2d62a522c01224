// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"vibecodex.dev/vibe-codex/rules"
)

// target is a rule bound to the module enforcing it.
type target struct {
	module *Module
	rule   *rules.Rule
	impl   rules.Implementation
}

func (t target) violation(file, format string, args ...any) Violation {
	return Violation{
		Module:   t.module.Name,
		Rule:     t.rule.ID,
		Severity: t.rule.Metadata.Severity,
		File:     file,
		Message:  fmt.Sprintf(format, args...),
	}
}

// option looks key up in the module options, the rule options and the
// implementation config, in that order.
func (t target) option(key string) (any, bool) {
	for _, m := range []map[string]any{t.module.Options, t.rule.Options, t.impl.Config} {
		if v, ok := m[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (t target) intOption(key string, def int) int {
	v, _ := t.option(key)
	if n, ok := intValue(v); ok {
		return n
	}
	return def
}

// intValue converts numbers decoded from JSON or YAML to int.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

func (t target) stringOption(key, def string) string {
	if s, ok := t.option(key); ok {
		if s, ok := s.(string); ok {
			return s
		}
	}
	return def
}

func (t target) stringsOption(key string, def []string) []string {
	v, _ := t.option(key)
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		ss := make([]string, 0, len(v))
		for _, s := range v {
			if s, ok := s.(string); ok {
				ss = append(ss, s)
			}
		}
		return ss
	}
	return def
}

// files returns the files t inspects: the event's files that match the
// rule's patterns, or every matching project file when the event names
// none.
func (t target) files(c *Context) ([]string, error) {
	if c.Files == nil {
		return glob(c.Dir, t.impl.Files)
	}
	var files []string
	for _, f := range c.Files {
		if !skipped(f) && t.impl.Matches(f) {
			files = append(files, f)
		}
	}
	return files, nil
}

// glob returns the files under dir matching any of patterns, sorted. No
// patterns matches every file.
func glob(dir string, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		patterns = []string{"**"}
	}
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	for _, pattern := range patterns {
		err := doublestar.GlobWalk(fsys, pattern, func(p string, d fs.DirEntry) error {
			if skipped(p) {
				if d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				seen[p] = true
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("matching %q: %w", pattern, err)
		}
	}
	return slices.Sorted(maps.Keys(seen)), nil
}

type check struct {
	run func(ctx context.Context, c *Context, t target) ([]Violation, error)
	// event is set for checks that need the arguments of a hook. They are
	// not offered as validators.
	event bool
}

func (ch check) bind(t target) CheckFunc {
	return func(ctx context.Context, c *Context) ([]Violation, error) {
		return ch.run(ctx, c, t)
	}
}

// checks are the built-in implementations of rule validators, by name.
var checks = map[string]check{
	"secrets":         {run: checkSecrets},
	"gitignore":       {run: requireFile(".gitignore", "no .gitignore at the project root")},
	"tests":           {run: requireMatch("no test files found")},
	"readme":          {run: requireMatch("no README at the project root")},
	"changelog":       {run: requireMatch("no CHANGELOG at the project root")},
	"pr-template":     {run: requireMatch("no pull request template")},
	"workflows":       {run: requireMatch("no GitHub Actions workflow")},
	"deploy":          {run: requireMatch("no deployment descriptor")},
	"context-file":    {run: checkContextFile},
	"file-size":       {run: checkFileSize},
	"commit-message":  {run: checkCommitMessage, event: true},
	"issue-reference": {run: checkIssueReference, event: true},
	"branch-name":     {run: checkBranchName, event: true},
}

func requireFile(name, msg string) func(context.Context, *Context, target) ([]Violation, error) {
	return func(_ context.Context, c *Context, t target) ([]Violation, error) {
		if c.exists(name) {
			return nil, nil
		}
		return []Violation{t.violation("", "%s", msg)}, nil
	}
}

// requireMatch reports msg unless some project file matches the rule's
// patterns. The event's files are not consulted.
func requireMatch(msg string) func(context.Context, *Context, target) ([]Violation, error) {
	return func(_ context.Context, c *Context, t target) ([]Violation, error) {
		files, err := glob(c.Dir, t.impl.Files)
		if err != nil {
			return nil, err
		}
		if len(files) > 0 {
			return nil, nil
		}
		return []Violation{t.violation("", "%s", msg)}, nil
	}
}

// checkContextFile reports a rule unless the project has a context file for
// at least one of the assistants the rule has an implementation for.
func checkContextFile(_ context.Context, c *Context, t target) ([]Violation, error) {
	var patterns []string
	for _, p := range slices.Sorted(maps.Keys(t.rule.Implementation)) {
		patterns = append(patterns, t.rule.Implementation[p].Files...)
	}
	if len(patterns) == 0 {
		return nil, nil
	}
	files, err := glob(c.Dir, patterns)
	if err != nil {
		return nil, err
	}
	if len(files) > 0 {
		return nil, nil
	}
	return []Violation{t.violation("", "no context file for coding assistants, want one of %s", strings.Join(patterns, ", "))}, nil
}

var secretPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"private key", regexp.MustCompile(`-----BEGIN (?:[A-Z]+ )?PRIVATE KEY-----`)},
	{"AWS access key", regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`)},
	{"GitHub token", regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{"Slack token", regexp.MustCompile(`\bxox[abprs]-[A-Za-z0-9-]{10,}`)},
	{"hardcoded credential", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret|password|passwd|token)\b\s*[:=]\s*["'][^"'\s]{8,}["']`)},
}

// isEnvFile reports whether name is a dotenv file other than a template.
func isEnvFile(name string) bool {
	if name == ".env" {
		return true
	}
	suffix, ok := strings.CutPrefix(name, ".env.")
	return ok && !slices.Contains([]string{"example", "sample", "template", "dist"}, suffix)
}

func checkSecrets(ctx context.Context, c *Context, t target) ([]Violation, error) {
	files, err := t.files(c)
	if err != nil {
		return nil, err
	}
	limit := t.intOption("maxScanBytes", 1<<20)
	var vs []Violation
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if isEnvFile(path.Base(f)) {
			vs = append(vs, t.violation(f, "environment files must not be committed"))
			continue
		}
		data, err := os.ReadFile(c.path(f))
		if errors.Is(err, fs.ErrNotExist) {
			// Deleted in the commit.
			continue
		}
		if err != nil {
			return nil, err
		}
		if len(data) > limit || bytes.IndexByte(data, 0) >= 0 {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			for _, p := range secretPatterns {
				if p.re.MatchString(line) {
					vs = append(vs, t.violation(f, "possible %s on line %d", p.name, i+1))
				}
			}
		}
	}
	return vs, nil
}

func checkFileSize(ctx context.Context, c *Context, t target) ([]Violation, error) {
	files, err := t.files(c)
	if err != nil {
		return nil, err
	}
	limit := t.intOption("maxBytes", 100<<10)
	var vs []Violation
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi, err := os.Stat(c.path(f))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if fi.Size() > int64(limit) {
			vs = append(vs, t.violation(f, "file is %d bytes, limit is %d", fi.Size(), limit))
		}
	}
	return vs, nil
}

// commitMessage returns the commit message named by the first event
// argument with comment lines removed.
func commitMessage(c *Context) (string, bool, error) {
	if len(c.Args) == 0 {
		return "", false, nil
	}
	b, err := os.ReadFile(c.path(c.Args[0]))
	if err != nil {
		return "", false, fmt.Errorf("reading commit message: %w", err)
	}
	var lines []string
	for line := range strings.Lines(string(b)) {
		if !strings.HasPrefix(line, "#") {
			lines = append(lines, strings.TrimRight(line, "\r\n"))
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), true, nil
}

// generated reports whether msg was written by git rather than a person.
func generated(msg string) bool {
	for _, prefix := range []string{"Merge ", "Revert \"", "fixup! ", "squash! ", "amend! "} {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

var defaultCommitTypes = []string{"feat", "fix", "docs", "style", "refactor", "perf", "test", "build", "ci", "chore", "revert"}

func checkCommitMessage(_ context.Context, c *Context, t target) ([]Violation, error) {
	msg, ok, err := commitMessage(c)
	if !ok || err != nil || generated(msg) {
		return nil, err
	}
	if msg == "" {
		return []Violation{t.violation("", "commit message is empty")}, nil
	}
	subject, _, _ := strings.Cut(msg, "\n")

	types := t.stringsOption("types", defaultCommitTypes)
	quoted := make([]string, len(types))
	for i, typ := range types {
		quoted[i] = regexp.QuoteMeta(typ)
	}
	re, err := regexp.Compile(`^(?:` + strings.Join(quoted, "|") + `)(?:\([^()\s]+\))?!?: \S`)
	if err != nil {
		return nil, err
	}

	var vs []Violation
	if !re.MatchString(subject) {
		vs = append(vs, t.violation("", "commit subject %q does not follow \"type(scope): summary\" with type one of %s", subject, strings.Join(types, ", ")))
	}
	if limit := t.intOption("maxSubjectLength", 72); len(subject) > limit {
		vs = append(vs, t.violation("", "commit subject is %d characters, limit is %d", len(subject), limit))
	}
	return vs, nil
}

func checkIssueReference(_ context.Context, c *Context, t target) ([]Violation, error) {
	msg, ok, err := commitMessage(c)
	if !ok || err != nil || generated(msg) {
		return nil, err
	}
	pattern := t.stringOption("issuePattern", `#[0-9]+`)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("issue pattern: %w", err)
	}
	if re.MatchString(msg) {
		return nil, nil
	}
	return []Violation{t.violation("", "commit message does not reference an issue matching /%s/", pattern)}, nil
}

func checkBranchName(_ context.Context, c *Context, t target) ([]Violation, error) {
	if c.Branch == "" || slices.Contains([]string{"main", "master", "HEAD"}, c.Branch) {
		return nil, nil
	}
	pattern := t.stringOption("branchPattern", `^[a-z0-9._/-]+$`)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("branch pattern: %w", err)
	}
	if re.MatchString(c.Branch) {
		return nil, nil
	}
	return []Violation{t.violation("", "branch %q does not match /%s/", c.Branch, pattern)}, nil
}

// ruleHooks returns the hooks enforcing the rules of m, by event. A rule
// gets one hook per event and check, however many platforms share it. When
// m.events is set, other events get no hooks.
func ruleHooks(m *Module) map[string][]Hook {
	type key struct{ event, rule, check string }
	hooks := make(map[string][]Hook)
	seen := make(map[key]bool)
	for _, r := range m.Rules {
		for _, p := range slices.Sorted(maps.Keys(r.Implementation)) {
			impl := r.Implementation[p]
			run := ruleCheck(m, r, impl)
			if run == nil {
				continue
			}
			check := "validator:" + impl.Validator
			if impl.Validator == "" {
				check = "command:" + strings.Join(strings.Fields(impl.Command), " ")
			}
			for _, event := range impl.Hooks {
				if len(m.events) > 0 && !slices.Contains(m.events, event) {
					continue
				}
				k := key{event, r.ID, check}
				if seen[k] {
					continue
				}
				seen[k] = true
				hooks[event] = append(hooks[event], Hook{Name: r.ID, Module: m.Name, Event: event, Run: run})
			}
		}
	}
	return hooks
}

// ruleCheck returns the check enforcing r on one platform, or nil if the
// implementation has nothing to run.
func ruleCheck(m *Module, r *rules.Rule, impl rules.Implementation) CheckFunc {
	t := target{module: m, rule: r, impl: impl}
	if ch, ok := checks[impl.Validator]; ok {
		return ch.bind(t)
	}
	if fields := strings.Fields(impl.Command); len(fields) > 0 {
		return command(fields).check(func(msg string) Violation { return t.violation("", "%s", msg) })
	}
	return nil
}

// ruleValidators returns the validators enforcing the rules of m, by name.
func ruleValidators(m *Module) map[string]Validator {
	vs := make(map[string]Validator)
	for _, r := range m.Rules {
		for _, p := range slices.Sorted(maps.Keys(r.Implementation)) {
			impl := r.Implementation[p]
			ch, ok := checks[impl.Validator]
			if !ok || ch.event {
				continue
			}
			if _, dup := vs[impl.Validator]; dup {
				continue
			}
			vs[impl.Validator] = Validator{
				Name:   impl.Validator,
				Module: m.Name,
				Rule:   r.ID,
				Run:    ch.bind(target{module: m, rule: r, impl: impl}),
			}
		}
	}
	return vs
}
