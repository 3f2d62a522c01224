// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package schema validates raw rule and ruleset definitions.
//
// A definition is a JSON object decoded into map[string]any. [Validate]
// checks it against the schema for its [Kind], reports every violated
// constraint at once and, on success, returns a copy of the definition with
// schema defaults filled in, so loaders never special-case missing optional
// fields. Unknown fields are preserved.
package schema

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"regexp"
	"slices"
	"strings"

	"go.uber.org/multierr"
)

// Kind selects the schema a definition is validated against.
type Kind string

const (
	// KindRule selects the rule (and hook) definition schema.
	KindRule Kind = "rule"
	// KindRuleset selects the ruleset schema.
	KindRuleset Kind = "ruleset"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return k == KindRule || k == KindRuleset }

// Result is the outcome of validating a single definition.
type Result struct {
	// Valid reports whether the definition satisfies its schema.
	Valid bool `json:"valid"`
	// Value is the definition with defaults applied. Set only when Valid.
	Value map[string]any `json:"value,omitempty"`
	// Error lists every violated constraint, joined by "; ".
	Error string `json:"error,omitempty"`
	// File is the file the definition was read from, if any.
	File string `json:"file,omitempty"`
}

// Validate checks def against the schema for kind.
//
// The input is never modified. Validation failures are reported through the
// returned Result, never as a panic or error.
func Validate(def map[string]any, kind Kind) Result {
	s, ok := schemas[kind]
	if !ok {
		return Result{Error: fmt.Sprintf("unknown schema type %q", kind)}
	}
	if def == nil {
		return Result{Error: `"value" must be of type object`}
	}

	value := deepCopy(def).(map[string]any)
	var errs error
	s.validateObject(value, "", &errs)
	if s.check != nil {
		errs = multierr.Append(errs, s.check(value))
	}
	if errs != nil {
		return Result{Error: joinErrors(errs)}
	}
	return Result{Valid: true, Value: value}
}

func joinErrors(err error) string {
	errs := multierr.Errors(err)
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return strings.Join(msgs, "; ")
}

type fieldType int

const (
	typeString fieldType = iota
	typeBool
	typeInteger
	typeArray
	typeObject
	// typeMap is an object with arbitrary keys whose values share a schema.
	typeMap
	// typeAny accepts any JSON value.
	typeAny
)

var typeNames = map[fieldType]string{
	typeString:  "string",
	typeBool:    "boolean",
	typeInteger: "number",
	typeArray:   "array",
	typeObject:  "object",
	typeMap:     "object",
	typeAny:     "any",
}

// field describes one property of a definition.
type field struct {
	name     string
	typ      fieldType
	required bool
	// def is applied when the property is absent. Slices and maps are copied
	// before use.
	def     any
	pattern *regexp.Regexp
	enum    []string
	// min is the minimum value for integers.
	min *int
	// minItems and unique constrain arrays.
	minItems int
	unique   bool
	// children describes properties of objects.
	children []field
	// items describes elements of arrays.
	items *field
	// keys restricts the keys of maps; values describes their values.
	keys    []string
	values  *field
	minKeys int
}

// schema is a top-level object schema plus an optional cross-field check.
type schema struct {
	fields []field
	check  func(map[string]any) error
}

func (s *schema) validateObject(obj map[string]any, path string, errs *error) {
	validateChildren(s.fields, obj, path, errs)
}

func validateChildren(fields []field, obj map[string]any, path string, errs *error) {
	for i := range fields {
		f := &fields[i]
		p := join(path, f.name)
		v, ok := obj[f.name]
		if !ok || v == nil {
			if f.required {
				*errs = multierr.Append(*errs, fmt.Errorf("%q is required", p))
				continue
			}
			if f.def == nil {
				continue
			}
			// Validating the default fills in defaults of its children.
			v = deepCopy(f.def)
			obj[f.name] = v
		}
		f.validate(v, p, errs)
	}
}

// validate checks v. Defaults of nested objects are filled in place.
func (f *field) validate(v any, path string, errs *error) {
	switch f.typ {
	case typeAny:
	case typeString:
		s, ok := v.(string)
		if !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
			return
		}
		f.validateString(s, path, errs)
	case typeBool:
		if _, ok := v.(bool); !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
		}
	case typeInteger:
		n, ok := v.(float64)
		if !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
			return
		}
		if n != math.Trunc(n) {
			*errs = multierr.Append(*errs, fmt.Errorf("%q must be an integer", path))
		}
		if f.min != nil && n < float64(*f.min) {
			*errs = multierr.Append(*errs, fmt.Errorf("%q must be greater than or equal to %d", path, *f.min))
		}
	case typeArray:
		arr, ok := v.([]any)
		if !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
			return
		}
		f.validateArray(arr, path, errs)
	case typeObject:
		obj, ok := v.(map[string]any)
		if !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
			return
		}
		validateChildren(f.children, obj, path, errs)
	case typeMap:
		obj, ok := v.(map[string]any)
		if !ok {
			*errs = multierr.Append(*errs, typeError(path, f.typ))
			return
		}
		f.validateMap(obj, path, errs)
	}
}

func (f *field) validateString(s, path string, errs *error) {
	if len(f.enum) > 0 && !slices.Contains(f.enum, s) {
		*errs = multierr.Append(*errs, fmt.Errorf("%q must be one of [%s]", path, strings.Join(f.enum, ", ")))
		return
	}
	if f.pattern != nil && !f.pattern.MatchString(s) {
		*errs = multierr.Append(*errs, fmt.Errorf("%q with value %q fails to match the required pattern: /%s/", path, s, f.pattern))
		return
	}
	if f.required && s == "" {
		*errs = multierr.Append(*errs, fmt.Errorf("%q is not allowed to be empty", path))
	}
}

func (f *field) validateArray(arr []any, path string, errs *error) {
	if len(arr) < f.minItems {
		*errs = multierr.Append(*errs, fmt.Errorf("%q must contain at least %d items", path, f.minItems))
	}
	seen := make(map[string]bool)
	for i, item := range arr {
		p := fmt.Sprintf("%s[%d]", path, i)
		if f.items != nil {
			f.items.validate(item, p, errs)
		}
		s, ok := item.(string)
		if !f.unique || !ok {
			continue
		}
		if seen[s] {
			*errs = multierr.Append(*errs, fmt.Errorf("%q contains a duplicate value", p))
			continue
		}
		seen[s] = true
	}
}

func (f *field) validateMap(obj map[string]any, path string, errs *error) {
	if len(obj) < f.minKeys {
		*errs = multierr.Append(*errs, fmt.Errorf("%q must have at least %d key", path, f.minKeys))
	}
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		p := join(path, k)
		if len(f.keys) > 0 && !slices.Contains(f.keys, k) {
			*errs = multierr.Append(*errs, fmt.Errorf("%q is not allowed", p))
			continue
		}
		if f.values != nil && obj[k] != nil {
			f.values.validate(obj[k], p, errs)
		}
	}
}

func typeError(path string, t fieldType) error {
	return fmt.Errorf("%q must be of type %s", path, typeNames[t])
}

func join(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

// deepCopy copies JSON-like values (maps, slices and scalars).
func deepCopy(v any) any {
	switch v := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(v))
		for k, val := range v {
			m[k] = deepCopy(val)
		}
		return m
	case []any:
		s := make([]any, len(v))
		for i, val := range v {
			s[i] = deepCopy(val)
		}
		return s
	case []string:
		s := make([]any, len(v))
		for i, val := range v {
			s[i] = val
		}
		return s
	default:
		return v
	}
}

// errNoRules is reported for a ruleset that neither lists rules nor
// extends another ruleset.
var errNoRules = errors.New(`"rules" must contain at least 1 items unless "extends" is set`)
