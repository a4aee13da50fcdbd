// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package machine

import (
	"context"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrCommandNotFound is returned by Resolve when no executable matches
	// the given name on the machine.
	ErrCommandNotFound = errors.New("command not found")
	// ErrCouldNotStartProcess is returned when the process could not be started.
	ErrCouldNotStartProcess = errors.New("could not start process")
	// ErrCouldNotKillProcess is returned when the process could not be killed.
	ErrCouldNotKillProcess = errors.New("could not kill process")
)

// StageSpec describes one process to be spawned on a Machine.
//
// Standard streams may be wired either to in-memory values (Stdin, Stdout,
// Stderr) or to files on the machine (InFile, OutFile, ErrFile). At most one
// of the two forms is set per stream; the file form always wins. A nil Stdin
// means the process receives an immediate EOF; nil Stdout/Stderr discard the
// output.
//
// Ownership of closable stream values passes to the Machine on Spawn: any
// Stdin, Stdout or Stderr value implementing io.Closer is closed by the
// spawned process wrapper once the stream is no longer needed. This is what
// guarantees EOF propagation between pipeline stages.
type StageSpec struct {
	// Path is the absolute path of the program to run.
	Path string
	// Args are the program arguments, not including the program itself.
	Args []string
	// Dir is the working directory. Empty means the machine's default.
	Dir string
	// Env is an environment overlay applied on top of the machine's base
	// environment.
	Env map[string]string

	// Stdin supplies the process's standard input.
	Stdin io.Reader
	// Stdout receives the process's standard output.
	Stdout io.Writer
	// Stderr receives the process's standard error.
	Stderr io.Writer

	// InFile redirects standard input from a file on the machine.
	InFile string
	// OutFile redirects standard output to a file on the machine.
	OutFile string
	// OutAppend appends to OutFile instead of truncating it.
	OutAppend bool
	// ErrFile redirects standard error to a file on the machine.
	ErrFile string
}

// Process is a handle to one spawned OS-level process (or remote channel).
type Process interface {
	// Wait blocks until the process exits and returns its exit code.
	// Wait must be called exactly once; it reaps the process and releases
	// any stream resources owned by the spawn.
	Wait() (int, error)
	// Terminate requests graceful termination (SIGTERM or equivalent).
	Terminate() error
	// Kill forcefully terminates the process.
	Kill() error
	// Pid returns the OS process identifier, or 0 when not applicable.
	Pid() int
}

// Machine represents an execution host, local or remote.
type Machine interface {
	fmt.Stringer

	// Resolve locates the executable for name and returns its absolute
	// path, or an error wrapping ErrCommandNotFound.
	Resolve(ctx context.Context, name string) (string, error)
	// Spawn starts a process described by spec. The spec's Dir and Env are
	// final values; callers overlay the machine context before spawning.
	Spawn(ctx context.Context, spec *StageSpec) (Process, error)
	// Link allocates a byte conduit suitable for connecting the stdout of
	// one stage on this machine to the stdin of the next.
	Link() (io.ReadCloser, io.WriteCloser, error)
	// Context returns the machine's working-directory/environment stack.
	Context() *ContextStack
}
