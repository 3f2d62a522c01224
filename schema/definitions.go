// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package schema

import "regexp"

// Values accepted by the enumerated fields of a rule definition.
var (
	Types      = []string{"rule", "hook"}
	Platforms  = []string{"git", "claude", "github-copilot", "cursor", "all"}
	Categories = []string{"security", "workflow", "quality", "documentation", "ai-development", "llm-specific"}
	Severities = []string{"low", "medium", "high", "critical"}
)

// Default values applied by [Validate].
const (
	DefaultSeverity = "medium"
	DefaultTimeout  = 30000
)

// IDPattern is the pattern every rule and ruleset id must match.
var IDPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

func stringList(def bool) field {
	f := field{typ: typeArray, items: &field{typ: typeString}}
	if def {
		f.def = []any{}
	}
	return f
}

func named(name string, f field) field {
	f.name = name
	return f
}

func intPtr(n int) *int { return &n }

var ruleSchema = &schema{
	fields: []field{
		{name: "id", typ: typeString, required: true, pattern: IDPattern},
		{name: "type", typ: typeString, required: true, enum: Types},
		{
			name:     "platforms",
			typ:      typeArray,
			required: true,
			minItems: 1,
			unique:   true,
			items:    &field{typ: typeString, enum: Platforms},
		},
		{
			name:     "metadata",
			typ:      typeObject,
			required: true,
			children: []field{
				{name: "name", typ: typeString, required: true},
				{name: "description", typ: typeString, required: true},
				{name: "category", typ: typeString, required: true, enum: Categories},
				{name: "severity", typ: typeString, enum: Severities, def: DefaultSeverity},
				named("tags", stringList(true)),
				{name: "enabled_by_default", typ: typeBool, def: false},
			},
		},
		{
			name:     "implementation",
			typ:      typeMap,
			required: true,
			minKeys:  1,
			keys:     Platforms,
			values: &field{
				typ: typeObject,
				children: []field{
					named("hooks", stringList(true)),
					{name: "script", typ: typeString},
					{name: "command", typ: typeString},
					{name: "validator", typ: typeString},
					{name: "config", typ: typeObject},
					named("files", stringList(true)),
				},
			},
		},
		{name: "options", typ: typeObject},
	},
}

var idList = field{typ: typeArray, def: []any{}, items: &field{typ: typeString, pattern: IDPattern}}

var rulesetSchema = &schema{
	fields: []field{
		{name: "id", typ: typeString, required: true, pattern: IDPattern},
		{name: "name", typ: typeString, required: true},
		{name: "description", typ: typeString},
		named("extends", idList),
		named("rules", idList),
		named("hooks", stringList(true)),
		{
			name: "config",
			typ:  typeObject,
			def:  map[string]any{},
			children: []field{
				{name: "failFast", typ: typeBool, def: false},
				{name: "parallel", typ: typeBool, def: true},
				{name: "timeout", typ: typeInteger, min: intPtr(1), def: float64(DefaultTimeout)},
			},
		},
		{name: "overrides", typ: typeMap, values: &field{typ: typeObject}},
	},
	check: func(v map[string]any) error {
		rules, _ := v["rules"].([]any)
		extends, _ := v["extends"].([]any)
		if len(rules) == 0 && len(extends) == 0 {
			return errNoRules
		}
		return nil
	},
}

var schemas = map[Kind]*schema{
	KindRule:    ruleSchema,
	KindRuleset: rulesetSchema,
}
