// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConflictingRedirection is returned when a stream already carries a
	// redirection and a composition would attach another one.
	ErrConflictingRedirection = errors.New("conflicting redirection")
	// ErrInvalidRedirectPosition is returned when a redirection is attached
	// where the stream is claimed by the pipeline structure, such as the
	// stdout of a non-terminal stage.
	ErrInvalidRedirectPosition = errors.New("invalid redirect position")
	// ErrInvalidBackgroundPosition is returned when Background appears inside
	// a pipe or sequence. Backgrounding applies only to a whole expression.
	ErrInvalidBackgroundPosition = errors.New("background only applies to a whole expression")
	// ErrCrossMachinePipe is returned when the two sides of a pipe belong to
	// different machines.
	ErrCrossMachinePipe = errors.New("pipe stages must share one machine")
	// ErrInvalidPipeOperand is returned when a sequence is used as a pipe
	// operand. Pipes connect commands, sequences connect pipelines.
	ErrInvalidPipeOperand = errors.New("cannot pipe into a sequence")
	// ErrTerminated is observed by waiters after an explicit Terminate.
	ErrTerminated = errors.New("execution terminated")
	// ErrTimedOut is returned by Wait when its context deadline expires
	// before the execution completes. The execution itself keeps running;
	// terminating it is the caller's decision.
	ErrTimedOut = errors.New("wait timed out")
)

// ExitError reports an execution whose terminal stage failed its success
// policy. It carries every stage's exit code plus the captured standard
// error for diagnosis.
type ExitError struct {
	// Cmdline is a human-readable rendering of the failed chain.
	Cmdline string
	// ExitCodes holds one exit code per spawned stage, in start order,
	// across all executed chains.
	ExitCodes []int
	// Stderr is the captured standard error, empty when stderr was
	// redirected elsewhere.
	Stderr string
}

// Error implements error.
func (e *ExitError) Error() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "command failed: %s: exit codes %v", e.Cmdline, e.ExitCodes)

	if e.Stderr != "" {
		fmt.Fprintf(&sb, ": %s", strings.TrimSpace(e.Stderr))
	}

	return sb.String()
}

// Code returns the terminal stage's exit code, or -1 when no stage ran.
func (e *ExitError) Code() int {
	if len(e.ExitCodes) == 0 {
		return -1
	}

	return e.ExitCodes[len(e.ExitCodes)-1]
}
