// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

/*
Vibe-codex enforces project conventions through git hooks and on-demand
checks.

A project is configured by a .vibe-codex.json (or .vibe-codex.yaml) file,
looked up from the working directory upward:

	{
	  "version": "1.0.0",
	  "modules": {
	    "core": {"enabled": true},
	    "testing": {"enabled": true},
	    "github": {"enabled": false}
	  },
	  "customModules": {"lint": "tools/lint.json"},
	  "issueTracking": {"provider": "jira", "project": "PROJ"}
	}

Each enabled module contributes rules and the hooks and validators that
enforce them. The core module is always enabled. Built-in modules are core,
github, testing, deployment, documentation and patterns. Custom modules are
JSON manifests whose hooks and validators run external programs.

Rules and rulesets come from a built-in definition store. Set "rulesDir" to
a directory with definitions/ and rulesets/ subdirectories to use your own.

Usage:

	$ vibe-codex [-C dir] [-v] <command> [flags] [args]

Commands:

  - validate: run every validator of the enabled modules and print the
    violations. With -watch, validate again whenever the configuration
    changes.
  - rules, rulesets: list definitions. rules -html writes an HTML catalog.
  - check [dir]: validate a definition store against the schemas.
  - modules: show the enabled modules and the ones that failed to load.
  - hook <event> [args...]: run the hooks registered for an event.
  - install-hooks: write .git/hooks scripts calling "vibe-codex hook".
  - init: write a default configuration file.
  - config show | enable <module> | disable <module>: inspect or change
    the configuration.

Violations of high or critical severity make validate and hook exit with a
non-zero status.
*/
package main

import (
	_ "embed"

	"vibecodex.dev/vibe-codex/cli"
)

//go:embed doc.go
var doc []byte

func init() { cli.SetDocComment(doc) }
