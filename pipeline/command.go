// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"maps"
	"slices"

	"github.com/matt-FFFFFF/conch/internal/shellquote"
	"github.com/matt-FFFFFF/conch/machine"
)

// Command is an immutable descriptor of one executable program owned by a
// machine: absolute program path, bound arguments, environment and
// working-directory overrides, and a success-code policy. Binding methods
// return a new value; the receiver is never mutated.
//
// A Command is itself an expression and can be piped, redirected, sequenced
// or backgrounded directly.
type Command struct {
	mach  machine.Machine
	path  string
	args  []string
	env   map[string]string
	dir   string
	valid RetcodeValidator
}

var _ Expr = Command{}

func (Command) expr() {}

// NewCommand returns a Command for an already-resolved program path on m.
func NewCommand(m machine.Machine, path string, args ...string) Command {
	return Command{
		mach: m,
		path: path,
		args: slices.Clone(args),
	}
}

// Resolve locates name on m and returns it as a Command with the given
// arguments bound. It fails with an error wrapping machine.ErrCommandNotFound
// when no executable matches.
func Resolve(ctx context.Context, m machine.Machine, name string, args ...string) (Command, error) {
	path, err := m.Resolve(ctx, name)
	if err != nil {
		return Command{}, err
	}

	return NewCommand(m, path, args...), nil
}

// Bind appends arguments, returning a new Command. Binding is associative:
// c.Bind(x).Bind(y) produces the same argv as c.Bind(x, y).
func (c Command) Bind(args ...string) Command {
	bound := make([]string, 0, len(c.args)+len(args))
	bound = append(bound, c.args...)
	bound = append(bound, args...)

	c.args = bound

	return c
}

// WithEnv overlays env on the command's environment overrides, returning a
// new Command. Later entries shadow earlier ones.
func (c Command) WithEnv(env map[string]string) Command {
	merged := maps.Clone(c.env)
	if merged == nil {
		merged = make(map[string]string, len(env))
	}

	maps.Copy(merged, env)

	c.env = merged

	return c
}

// WithDir sets the working-directory override, returning a new Command.
func (c Command) WithDir(dir string) Command {
	c.dir = dir

	return c
}

// WithSuccess sets the success-code policy, returning a new Command.
func (c Command) WithSuccess(v RetcodeValidator) Command {
	c.valid = v

	return c
}

// Nest uses the receiver as a prefix wrapper around inner, the way elevation
// tools like sudo wrap the command they run. The result executes on inner's
// machine with argv
//
//	receiver.path receiver.args... inner.path inner.args...
//
// The environments merge with inner's entries shadowing the receiver's;
// inner's working directory and success policy win when set.
func (c Command) Nest(inner Command) Command {
	args := make([]string, 0, len(c.args)+1+len(inner.args))
	args = append(args, c.args...)
	args = append(args, inner.path)
	args = append(args, inner.args...)

	nested := Command{
		mach:  inner.mach,
		path:  c.path,
		args:  args,
		dir:   inner.dir,
		valid: inner.valid,
	}
	if nested.dir == "" {
		nested.dir = c.dir
	}

	if len(c.env) > 0 || len(inner.env) > 0 {
		nested.env = make(map[string]string, len(c.env)+len(inner.env))
		maps.Copy(nested.env, c.env)
		maps.Copy(nested.env, inner.env)
	}

	return nested
}

// Machine returns the machine the command executes on.
func (c Command) Machine() machine.Machine { return c.mach }

// Path returns the absolute program path.
func (c Command) Path() string { return c.path }

// Args returns a copy of the bound arguments.
func (c Command) Args() []string { return slices.Clone(c.args) }

// String renders the command as a shell-safe command line.
func (c Command) String() string {
	return shellquote.Join(append([]string{c.path}, c.args...))
}
