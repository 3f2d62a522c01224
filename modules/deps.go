// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Result is the outcome of [ValidateDependencies].
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// DependencyError is returned by [Loader.LoadModules] when the loaded
// modules have missing or circular dependencies.
type DependencyError struct {
	Errors []string
}

func (e *DependencyError) Error() string {
	return "invalid module dependencies: " + strings.Join(e.Errors, "; ")
}

// ValidateDependencies checks the dependency graph formed by modules.
//
// Dependencies are resolved only against modules, not against the registry.
// Every reference to an absent module is reported, as is every cycle, in a
// deterministic order.
func ValidateDependencies(modules map[string]*Module) Result {
	names := slices.Sorted(maps.Keys(modules))
	errs := []string{}

	for _, name := range names {
		for _, dep := range modules[name].Dependencies {
			if _, ok := modules[dep]; !ok {
				errs = append(errs, fmt.Sprintf("module %q depends on missing module %q", name, dep))
			}
		}
	}

	var (
		visited = make(map[string]bool)
		onStack = make(map[string]bool)
		stack   []string
		visit   func(name string)
	)
	visit = func(name string) {
		visited[name] = true
		onStack[name] = true
		stack = append(stack, name)
		for _, dep := range modules[name].Dependencies {
			if _, ok := modules[dep]; !ok {
				continue
			}
			if onStack[dep] {
				cycle := append(slices.Clone(stack[slices.Index(stack, dep):]), dep)
				errs = append(errs, "Circular dependency detected: "+strings.Join(cycle, " -> "))
				continue
			}
			if !visited[dep] {
				visit(dep)
			}
		}
		stack = stack[:len(stack)-1]
		onStack[name] = false
	}
	for _, name := range names {
		if !visited[name] {
			visit(name)
		}
	}

	return Result{Valid: len(errs) == 0, Errors: errs}
}
