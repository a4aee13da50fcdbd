// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package pipeline provides a composable, typed command-execution model.
//
// Programs are first-class values: a Command binds a resolved executable to
// arguments, environment and working-directory overrides, and a success-code
// policy. Commands compose into expressions with Pipe, RedirectIn,
// RedirectOut, RedirectErr, Seq and Background. Expressions are pure data;
// nothing runs until Run or Start compiles the expression against the owning
// machine's context and spawns the stages.
//
// Construction errors (conflicting redirections, cross-machine pipes,
// misplaced background markers) are reported by the builder functions, never
// deferred to run time. Run blocks and returns the captured result; Start
// returns a Future with poll, wait and terminate operations.
package pipeline
