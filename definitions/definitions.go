// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package definitions embeds the default rule and ruleset store.
//
// The store is laid out as definitions/<id>.json for rules and hooks and
// rulesets/<id>.json for rulesets. Any [fs.FS] with the same layout, such as
// os.DirFS of a project's rules directory, can be used in its place.
package definitions

import (
	"embed"
	"io/fs"
)

//go:embed definitions/*.json rulesets/*.json
var store embed.FS

// FS returns the embedded store.
func FS() fs.FS { return store }
