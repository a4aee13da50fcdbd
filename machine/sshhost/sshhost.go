// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package sshhost implements a machine.Machine that executes commands on a
// remote host over a transport.Session.
//
// The remote side has no process-tree-local state, so the machine context is
// applied as an explicit prefix on every spawned command line:
//
//	cd <dir> && export K=V ... && exec <argv>
//
// Every argument is individually quoted so the remote shell reconstructs the
// original argv byte-for-byte.
package sshhost

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"regexp"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/matt-FFFFFF/conch/internal/shellquote"
	"github.com/matt-FFFFFF/conch/machine"
	"github.com/matt-FFFFFF/conch/transport"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidEnvName is returned when an environment variable name cannot
	// be exported safely through the remote shell.
	ErrInvalidEnvName = errors.New("invalid environment variable name")
	// ErrSessionClosed is returned when spawning on a machine whose session
	// has been closed.
	ErrSessionClosed = errors.New("session closed")
)

var envName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Machine executes commands on one remote host. All spawns share the
// machine's transport session; each spawn runs on a fresh channel.
type Machine struct {
	session transport.Session
	host    string
	stack   *machine.ContextStack

	mu       sync.Mutex
	channels sync.WaitGroup
	closed   bool
}

var _ machine.Machine = (*Machine)(nil)

// New returns a Machine running commands over session. The host name is
// used for identification only; the session is already connected.
func New(session transport.Session, host string) *Machine {
	return &Machine{
		session: session,
		host:    host,
		stack:   machine.NewContextStack(),
	}
}

// String implements fmt.Stringer.
func (m *Machine) String() string { return "ssh://" + m.host }

// Context returns the machine's working-directory/environment stack.
func (m *Machine) Context() *machine.ContextStack { return m.stack }

// Link allocates an in-memory conduit for connecting two remote stages.
func (m *Machine) Link() (io.ReadCloser, io.WriteCloser, error) {
	r, w := io.Pipe()
	return r, w, nil
}

// Resolve locates name on the remote host using the shell's `command -v`.
func (m *Machine) Resolve(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", machine.ErrCommandNotFound)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return "", ErrSessionClosed
	}

	m.channels.Add(1)
	m.mu.Unlock()

	defer m.channels.Done()

	// `command -v` is a shell builtin, so no exec prefix here.
	cmdline := "command -v -- " + shellquote.Quote(name)

	ch, err := m.session.OpenChannel(ctx, cmdline)
	if err != nil {
		return "", errors.Join(machine.ErrCouldNotStartProcess, err)
	}

	_ = ch.Stdin().Close() // Best effort.

	var stdout bytes.Buffer

	_, copyErr := io.Copy(&stdout, ch.Stdout())

	code, err := ch.Wait()

	err = errors.Join(err, copyErr, ch.Close())
	if err != nil {
		return "", err
	}

	path := strings.TrimSpace(stdout.String())
	if code != 0 || path == "" {
		return "", fmt.Errorf("%w: %q on %s", machine.ErrCommandNotFound, name, m)
	}

	return path, nil
}

// Spawn opens a channel over the machine's session and starts spec's
// command inside a remote shell. Closable stream values in spec are owned
// by the returned Process and released as their pumps finish.
func (m *Machine) Spawn(ctx context.Context, spec *machine.StageSpec) (machine.Process, error) {
	cmdline, err := assembleCommandLine(spec)
	if err != nil {
		return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, errors.Join(machine.ErrCouldNotStartProcess, ErrSessionClosed)
	}

	m.channels.Add(1)
	m.mu.Unlock()

	ctxlog.Debug(ctx, "spawning remote process", "machine", m.String(), "cmdline", cmdline)

	ch, err := m.session.OpenChannel(ctx, cmdline)
	if err != nil {
		m.channels.Done()

		return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
	}

	g := &errgroup.Group{}

	// Stdin pump. When no input is supplied the channel's stdin is closed
	// immediately so the remote command observes EOF.
	if spec.InFile == "" {
		if stdin := spec.Stdin; stdin != nil {
			g.Go(func() error {
				_, err := io.Copy(ch.Stdin(), stdin)
				if downstreamClosed(err) {
					// The remote command stopped reading before its input
					// was exhausted. Locally the producer would take EPIPE;
					// not an execution failure.
					err = nil
				}

				err = errors.Join(err, ch.Stdin().Close())
				if c, ok := stdin.(io.Closer); ok {
					err = errors.Join(err, c.Close())
				}

				return err
			})
		} else {
			_ = ch.Stdin().Close() // Best effort.
		}
	}

	if spec.OutFile == "" {
		g.Go(pump(ch, spec.Stdout, ch.Stdout()))
	}

	if spec.ErrFile == "" {
		g.Go(pump(ch, spec.Stderr, ch.Stderr()))
	}

	p := &process{ch: ch, g: g, owner: m}
	p.wait = sync.OnceValues(p.waitFunc)

	return p, nil
}

// pump drains src into dst on its own task, closing dst afterwards when it
// is closable. Draining concurrently with execution keeps a fast producer
// from blocking on a full channel window.
//
// When dst is the upstream end of a conduit whose consumer has already
// exited, writes fail instead of delivering the SIGPIPE a local process
// would take. The pump stands in for the kernel here: it signals the remote
// command and keeps draining src until the command exits, so the channel
// window never fills and Wait always returns.
func pump(ch transport.Channel, dst io.Writer, src io.Reader) func() error {
	if dst == nil {
		dst = io.Discard
	}

	return func() error {
		_, err := io.Copy(dst, src)
		if err != nil {
			_ = ch.Signal("PIPE") // Best effort.

			_, _ = io.Copy(io.Discard, src)

			if downstreamClosed(err) {
				err = nil
			}
		}

		if c, ok := dst.(io.Closer); ok {
			err = errors.Join(err, c.Close())
		}

		return err
	}
}

// downstreamClosed reports whether err is the write-side symptom of a
// consumer that stopped reading: the in-process equivalent of EPIPE.
func downstreamClosed(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, fs.ErrClosed) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.EOF)
}

// Close waits for all outstanding channels to finish, then tears down the
// session. The context bounds the wait for outstanding channels.
func (m *Machine) Close(ctx context.Context) error {
	m.mu.Lock()
	alreadyClosed := m.closed
	m.closed = true
	m.mu.Unlock()

	if alreadyClosed {
		return nil
	}

	var errs *multierror.Error

	done := make(chan struct{})

	go func() {
		m.channels.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = multierror.Append(errs, fmt.Errorf("waiting for outstanding channels: %w", ctx.Err()))
	}

	if err := m.session.Close(); err != nil {
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// assembleCommandLine renders spec as a single, injection-safe remote shell
// command line.
func assembleCommandLine(spec *machine.StageSpec) (string, error) {
	if spec.Path == "" {
		return "", errors.New("no program path")
	}

	var sb strings.Builder

	if spec.Dir != "" {
		sb.WriteString("cd " + shellquote.Quote(spec.Dir) + " && ")
	}

	if len(spec.Env) > 0 {
		keys := make([]string, 0, len(spec.Env))
		for k := range spec.Env {
			if !envName.MatchString(k) {
				return "", fmt.Errorf("%w: %q", ErrInvalidEnvName, k)
			}

			keys = append(keys, k)
		}

		sort.Strings(keys)

		sb.WriteString("export")

		for _, k := range keys {
			sb.WriteString(" " + k + "=" + shellquote.Quote(spec.Env[k]))
		}

		sb.WriteString(" && ")
	}

	sb.WriteString("exec ")
	sb.WriteString(shellquote.Join(append([]string{spec.Path}, spec.Args...)))

	if spec.InFile != "" {
		sb.WriteString(" < " + shellquote.Quote(spec.InFile))
	}

	if spec.OutFile != "" {
		if spec.OutAppend {
			sb.WriteString(" >> " + shellquote.Quote(spec.OutFile))
		} else {
			sb.WriteString(" > " + shellquote.Quote(spec.OutFile))
		}
	}

	if spec.ErrFile != "" {
		sb.WriteString(" 2> " + shellquote.Quote(spec.ErrFile))
	}

	return sb.String(), nil
}

type process struct {
	ch    transport.Channel
	g     *errgroup.Group
	owner *Machine
	wait  func() (int, error)
}

var _ machine.Process = (*process)(nil)

// Wait drains the stdio pumps, collects the remote exit status and releases
// the channel.
func (p *process) Wait() (int, error) {
	return p.wait()
}

func (p *process) waitFunc() (int, error) {
	defer p.owner.channels.Done()

	// All pipe reads must complete before collecting the exit status.
	pumpErr := p.g.Wait()

	code, err := p.ch.Wait()

	err = errors.Join(err, pumpErr, p.ch.Close())
	if err != nil {
		return -1, err
	}

	return code, nil
}

// Terminate asks the remote command to stop via SIGTERM.
func (p *process) Terminate() error {
	if err := p.ch.Signal("TERM"); err != nil {
		// The remote command may already have exited.
		return nil //nolint:nilerr
	}

	return nil
}

// Kill sends SIGKILL and tears the channel down.
func (p *process) Kill() error {
	_ = p.ch.Signal("KILL") // Best effort.

	if err := p.ch.Close(); err != nil {
		return errors.Join(machine.ErrCouldNotKillProcess, err)
	}

	return nil
}

// Pid returns 0: remote process identifiers are not exposed by the
// transport contract.
func (p *process) Pid() int { return 0 }
