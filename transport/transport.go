// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package transport defines the contract a remote backend must satisfy for
// machine/sshhost. A Session is one authenticated connection to a host;
// each spawned command runs on a fresh Channel over that session, so the
// connection setup cost is paid once. Authentication and host-key
// verification are entirely the implementation's concern.
package transport

import (
	"context"
	"io"
)

// Channel is one remote command execution in flight.
type Channel interface {
	// Stdin returns the writer feeding the remote command's standard input.
	// Closing it signals EOF to the remote command.
	Stdin() io.WriteCloser
	// Stdout returns the remote command's standard output stream.
	Stdout() io.Reader
	// Stderr returns the remote command's standard error stream.
	Stderr() io.Reader
	// Wait blocks until the remote command exits and returns its exit code.
	Wait() (int, error)
	// Signal delivers a signal name (e.g. "TERM", "KILL") to the remote command.
	Signal(sig string) error
	// Close tears the channel down. It is safe to call after Wait.
	Close() error
}

// Session is a long-lived, authenticated connection to one remote host.
// Implementations must allow concurrent OpenChannel calls; each channel is
// independent.
type Session interface {
	// OpenChannel starts cmdline in a remote shell and returns the channel
	// carrying its stdio and exit status.
	OpenChannel(ctx context.Context, cmdline string) (Channel, error)
	// Close tears down the session. Callers are responsible for waiting
	// until outstanding channels are finished.
	Close() error
}
