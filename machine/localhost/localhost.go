// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package localhost implements a machine.Machine that executes commands on
// the local system using os/exec.
package localhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"

	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/matt-FFFFFF/conch/machine"
	"github.com/spf13/afero"
)

// getenv reads process environment variables. It is a variable so tests can
// stub PATH resolution.
var getenv = os.Getenv

// Machine executes commands on the local system.
type Machine struct {
	fs    afero.Fs
	stack *machine.ContextStack
}

var _ machine.Machine = (*Machine)(nil)

// New returns a Machine backed by the OS filesystem.
func New() *Machine {
	return NewWithFs(afero.NewOsFs())
}

// NewWithFs returns a Machine that opens redirection targets through fs.
// Passing an in-memory filesystem makes redirection testable without
// touching the disk.
func NewWithFs(fs afero.Fs) *Machine {
	return &Machine{
		fs:    fs,
		stack: machine.NewContextStack(),
	}
}

// String implements fmt.Stringer.
func (m *Machine) String() string { return "localhost" }

// Context returns the machine's working-directory/environment stack.
func (m *Machine) Context() *machine.ContextStack { return m.stack }

// Link allocates an OS pipe for connecting two local stages.
func (m *Machine) Link() (io.ReadCloser, io.WriteCloser, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}

	return r, w, nil
}

// Resolve locates name on the executable search path. Names containing a
// path separator are checked directly. Returns the absolute path of the
// executable or an error wrapping machine.ErrCommandNotFound.
func (m *Machine) Resolve(_ context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", machine.ErrCommandNotFound)
	}

	if strings.ContainsRune(name, os.PathSeparator) || strings.ContainsRune(name, '/') {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %s", machine.ErrCommandNotFound, name, err)
		}

		if m.isExecutable(abs) {
			return abs, nil
		}

		return "", fmt.Errorf("%w: %q", machine.ErrCommandNotFound, name)
	}

	paths := strings.Split(getenv("PATH"), string(os.PathListSeparator))
	for _, p := range paths {
		if p == "" {
			continue
		}

		candidate := filepath.Join(p, name)
		if m.isExecutable(candidate) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: %q", machine.ErrCommandNotFound, name)
}

func (m *Machine) isExecutable(path string) bool {
	info, err := m.fs.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}

	if runtime.GOOS != "windows" && info.Mode()&0111 == 0 {
		return false
	}

	return true
}

// Spawn starts a local process per spec. Closable stream values in spec are
// owned by the returned Process: OS file ends are closed once the child
// holds its duplicates, other closers are released on Wait.
func (m *Machine) Spawn(ctx context.Context, spec *machine.StageSpec) (machine.Process, error) {
	if spec.Path == "" {
		return nil, fmt.Errorf("%w: no program path", machine.ErrCouldNotStartProcess)
	}

	cmd := exec.Command(spec.Path, spec.Args...)
	cmd.Dir = spec.Dir

	cmd.Env = os.Environ()
	for k, v := range spec.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	var afterStart, afterWait []io.Closer

	closeAll := func(closers []io.Closer) {
		for _, c := range closers {
			_ = c.Close() // Best effort.
		}
	}

	own := func(v any) {
		if f, ok := v.(*os.File); ok {
			afterStart = append(afterStart, f)
			return
		}

		if c, ok := v.(io.Closer); ok {
			afterWait = append(afterWait, c)
		}
	}

	switch {
	case spec.InFile != "":
		f, err := m.fs.Open(spec.InFile)
		if err != nil {
			return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
		}

		cmd.Stdin = f

		own(f)
	case spec.Stdin != nil:
		cmd.Stdin = spec.Stdin

		own(spec.Stdin)
	}

	switch {
	case spec.OutFile != "":
		f, err := m.openOutputFile(spec.OutFile, spec.OutAppend)
		if err != nil {
			closeAll(afterStart)
			closeAll(afterWait)

			return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
		}

		cmd.Stdout = f

		own(f)
	case spec.Stdout != nil:
		cmd.Stdout = spec.Stdout

		own(spec.Stdout)
	}

	switch {
	case spec.ErrFile != "":
		f, err := m.openOutputFile(spec.ErrFile, false)
		if err != nil {
			closeAll(afterStart)
			closeAll(afterWait)

			return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
		}

		cmd.Stderr = f

		own(f)
	case spec.Stderr != nil:
		cmd.Stderr = spec.Stderr

		own(spec.Stderr)
	}

	ctxlog.Debug(ctx, "spawning local process",
		"path", spec.Path, "args", spec.Args, "dir", spec.Dir)

	if err := cmd.Start(); err != nil {
		closeAll(afterStart)
		closeAll(afterWait)

		return nil, errors.Join(machine.ErrCouldNotStartProcess, err)
	}

	// The child now holds duplicates of every attached file descriptor;
	// releasing the parent copies is what lets downstream stages observe
	// EOF when this stage exits.
	closeAll(afterStart)

	ctxlog.Debug(ctx, "local process started", "pid", cmd.Process.Pid)

	p := &process{cmd: cmd, afterWait: afterWait}
	p.wait = sync.OnceValues(p.waitFunc)

	return p, nil
}

func (m *Machine) openOutputFile(path string, appendMode bool) (afero.File, error) {
	flag := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if appendMode {
		flag = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}

	return m.fs.OpenFile(path, flag, 0o644)
}

type process struct {
	cmd       *exec.Cmd
	afterWait []io.Closer
	wait      func() (int, error)
}

var _ machine.Process = (*process)(nil)

// Wait reaps the process. A non-zero exit status is reported through the
// returned code, not the error.
func (p *process) Wait() (int, error) {
	return p.wait()
}

func (p *process) waitFunc() (int, error) {
	err := p.cmd.Wait()

	var closeErr error
	for _, c := range p.afterWait {
		closeErr = errors.Join(closeErr, c.Close())
	}

	if err != nil {
		if ee := new(exec.ExitError); errors.As(err, &ee) {
			return ee.ExitCode(), nil
		}

		return -1, errors.Join(err, closeErr)
	}

	if closeErr != nil {
		return 0, closeErr
	}

	return 0, nil
}

// Terminate sends SIGTERM to the process. On Windows, where no graceful
// signal exists, it kills the process outright.
func (p *process) Terminate() error {
	if p.cmd.Process == nil {
		return nil
	}

	if runtime.GOOS == "windows" {
		return p.Kill()
	}

	if err := p.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}

		return err
	}

	return nil
}

// Kill forcefully terminates the process.
func (p *process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}

	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return errors.Join(machine.ErrCouldNotKillProcess, err)
	}

	return nil
}

// Pid returns the OS process identifier.
func (p *process) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}

	return p.cmd.Process.Pid
}
