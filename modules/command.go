// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package modules

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strings"
)

// command is a program followed by its arguments.
type command []string

// run runs cmd in dir with extra appended to its arguments. A non-zero exit
// status is reported as failed, with the combined output.
func (cmd command) run(ctx context.Context, dir string, extra ...string) (output string, failed bool, err error) {
	if len(cmd) == 0 {
		return "", false, errors.New("empty command")
	}
	var buf bytes.Buffer
	c := exec.CommandContext(ctx, cmd[0], slices.Concat(cmd[1:], extra)...)
	c.Dir = dir
	c.Stdout = &buf
	c.Stderr = &buf
	err = c.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, fmt.Errorf("%s: %w", cmd, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return buf.String(), true, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", cmd, err)
	}
	return buf.String(), false, nil
}

func (cmd command) String() string { return strings.Join(cmd, " ") }

// check returns a CheckFunc running cmd in the project directory with the
// event arguments appended. A failure is reported through violation.
func (cmd command) check(violation func(msg string) Violation) CheckFunc {
	return func(ctx context.Context, c *Context) ([]Violation, error) {
		out, failed, err := cmd.run(ctx, c.Dir, c.Args...)
		if err != nil || !failed {
			return nil, err
		}
		return []Violation{violation(fmt.Sprintf("%s failed:\n%s", cmd, strings.TrimSpace(out)))}, nil
	}
}
