// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package report renders rule catalogs as standalone HTML pages.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"vibecodex.dev/vibe-codex/rules"
)

// Catalog is the content of a catalog page.
type Catalog struct {
	Title    string                 `json:"title"`
	Rules    []rules.RuleSummary    `json:"rules"`
	Rulesets []rules.RulesetSummary `json:"rulesets"`
}

// DefaultTitle is used when a [Catalog] has no title.
const DefaultTitle = "vibe-codex rules"

const style = `body { font-family: system-ui, sans-serif; margin: 2rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border-bottom: 1px solid #ddd; padding: .4rem .6rem; text-align: left; }
.severity-critical td:nth-child(5) { color: #b00020; font-weight: bold; }
.severity-high td:nth-child(5) { color: #c05600; }`

// Page returns a component rendering c as an HTML page.
func Page(c Catalog) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := c.Title
		if title == "" {
			title = DefaultTitle
		}
		p := &printer{w: w}
		p.printf("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
		p.printf("<meta charset=\"utf-8\">\n")
		p.printf("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n")
		p.printf("<title>%s</title>\n", templ.EscapeString(title))
		p.printf("<style>\n%s\n</style>\n</head>\n<body>\n", style)
		p.printf("<h1>%s</h1>\n", templ.EscapeString(title))
		if p.err != nil {
			return p.err
		}
		if err := RulesTable(c.Rules).Render(ctx, w); err != nil {
			return err
		}
		if err := RulesetsTable(c.Rulesets).Render(ctx, w); err != nil {
			return err
		}
		p.printf("</body>\n</html>\n")
		return p.err
	})
}

// RulesTable returns a component rendering rs as a table section.
func RulesTable(rs []rules.RuleSummary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf("<h2>Rules</h2>\n")
		if len(rs) == 0 {
			p.printf("<p>No rules.</p>\n")
			return p.err
		}
		p.printf("<table>\n<thead><tr>%s</tr></thead>\n<tbody>\n", headings("ID", "Name", "Type", "Category", "Severity", "Platforms", "Default"))
		for _, r := range rs {
			platforms := make([]string, len(r.Platforms))
			for i, pl := range r.Platforms {
				platforms[i] = string(pl)
			}
			enabled := "no"
			if r.EnabledByDefault {
				enabled = "yes"
			}
			p.printf("<tr class=\"severity-%s\">%s</tr>\n",
				templ.EscapeString(string(r.Severity)),
				cells(code(r.ID), r.Name, string(r.Type), string(r.Category), string(r.Severity), strings.Join(platforms, ", "), enabled),
			)
		}
		p.printf("</tbody>\n</table>\n")
		return p.err
	})
}

// RulesetsTable returns a component rendering rs as a table section.
func RulesetsTable(rs []rules.RulesetSummary) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		p := &printer{w: w}
		p.printf("<h2>Rulesets</h2>\n")
		if len(rs) == 0 {
			p.printf("<p>No rulesets.</p>\n")
			return p.err
		}
		p.printf("<table>\n<thead><tr>%s</tr></thead>\n<tbody>\n", headings("ID", "Name", "Description", "Rules", "Extends"))
		for _, s := range rs {
			p.printf("<tr>%s</tr>\n", cells(code(s.ID), s.Name, s.Description, fmt.Sprint(s.RuleCount), strings.Join(s.Extends, ", ")))
		}
		p.printf("</tbody>\n</table>\n")
		return p.err
	})
}

// code marks a cell as code. Its content is escaped by cells.
type code string

func headings(names ...string) string {
	var sb strings.Builder
	for _, n := range names {
		sb.WriteString("<th>" + templ.EscapeString(n) + "</th>")
	}
	return sb.String()
}

func cells(first code, rest ...string) string {
	var sb strings.Builder
	sb.WriteString("<td><code>" + templ.EscapeString(string(first)) + "</code></td>")
	for _, s := range rest {
		sb.WriteString("<td>" + templ.EscapeString(s) + "</td>")
	}
	return sb.String()
}

// printer remembers the first write error.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
