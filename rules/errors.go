// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package rules

import (
	"errors"
	"fmt"

	"vibecodex.dev/vibe-codex/schema"
)

// ErrCircularExtension is returned by [Loader.LoadRuleset] when a ruleset
// extends itself, directly or through other rulesets.
var ErrCircularExtension = errors.New("circular ruleset extension")

// NotFoundError is returned when a definition file does not exist. It
// unwraps to the underlying [fs.ErrNotExist] error.
type NotFoundError struct {
	Kind schema.Kind
	ID   string
	Err  error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %q not found", e.Kind, e.ID) }
func (e *NotFoundError) Unwrap() error { return e.Err }

// InvalidError is returned when a definition fails schema validation.
type InvalidError struct {
	Kind schema.Kind
	ID   string
	File string
	// Message lists every violation, joined by "; ".
	Message string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.ID, e.Message)
}
