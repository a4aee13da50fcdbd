// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/matt-FFFFFF/conch/machine"
)

// State is the lifecycle state of one spawned execution.
type State int

const (
	// StateNotStarted means no process has been spawned yet.
	StateNotStarted State = iota
	// StateRunning means at least one stage is alive.
	StateRunning
	// StateSucceeded means the execution completed and passed its success policy.
	StateSucceeded
	// StateFailed means the execution completed but failed, or could not spawn.
	StateFailed
	// StateTerminated means the execution was stopped by an explicit Terminate.
	StateTerminated
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateTerminated:
		return "terminated"
	default:
		return "not started"
	}
}

// Done reports whether s is a terminal state.
func (s State) Done() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTerminated
}

// terminationGrace is how long Terminate waits between the graceful signal
// and the forceful kill.
const terminationGrace = 5 * time.Second

// lockedBuffer is a byte buffer safe for one writer per stream pump plus
// concurrent Poll snapshots.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// handle is the live state behind a Future. It is separate from the Future
// so the runner and the cleanup hook can outlive the caller's reference.
type handle struct {
	cmdline string

	mu            sync.Mutex
	state         State
	procs         []machine.Process
	exitCodes     []int
	termRequested bool
	err           error

	waited atomic.Bool
	done   chan struct{}

	stdout *lockedBuffer
	stderr *lockedBuffer
}

func newHandle(cmdline string) *handle {
	return &handle{
		cmdline: cmdline,
		done:    make(chan struct{}),
		stdout:  &lockedBuffer{},
		stderr:  &lockedBuffer{},
	}
}

func (h *handle) setRunning() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = StateRunning
}

// trackProcs replaces the set of live processes Terminate can reach.
func (h *handle) trackProcs(procs []machine.Process) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.procs = procs
}

func (h *handle) recordCodes(codes []int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.exitCodes = append(h.exitCodes, codes...)
}

func (h *handle) terminationRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.termRequested
}

// finish moves the handle to a terminal state and releases all waiters.
func (h *handle) finish(state State, err error) {
	h.mu.Lock()
	h.state = state
	h.err = err
	h.procs = nil
	h.mu.Unlock()

	close(h.done)
}

func (h *handle) snapshot() Result {
	h.mu.Lock()
	defer h.mu.Unlock()

	return Result{
		State:     h.state,
		ExitCodes: slices.Clone(h.exitCodes),
		Stdout:    h.stdout.String(),
		Stderr:    h.stderr.String(),
	}
}

// Future is a handle to one running compiled expression. It is returned by
// Start and supports non-blocking Poll, blocking Wait, and Terminate.
type Future struct {
	h *handle
}

// Poll returns the current status without blocking. Polling is
// non-destructive and repeatable; captured output reflects what has been
// drained so far.
func (f *Future) Poll() Result {
	return f.h.snapshot()
}

// State returns the current lifecycle state.
func (f *Future) State() State {
	f.h.mu.Lock()
	defer f.h.mu.Unlock()

	return f.h.state
}

// Wait blocks until the execution reaches a terminal state and returns the
// final result. Waiting twice returns the same result; resources are
// released exactly once by the runner. When ctx expires first the execution
// keeps running and Wait returns ErrTimedOut; terminating is the caller's
// decision.
func (f *Future) Wait(ctx context.Context) (Result, error) {
	// Keep the Future reachable for the duration of the blocking wait so
	// the abandoned-handle cleanup cannot fire mid-call.
	defer runtime.KeepAlive(f)

	select {
	case <-f.h.done:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return f.h.snapshot(), errors.Join(ErrTimedOut, ctx.Err())
		}

		return f.h.snapshot(), ctx.Err()
	}

	// Only a Wait that saw the terminal state counts as observed; a timed
	// out Wait must not suppress the discarded-failure warning.
	f.h.waited.Store(true)

	return f.h.snapshot(), f.h.err
}

// Terminate stops the execution: every live stage receives a graceful
// termination request, and stages still alive after a grace period are
// killed. Chains not yet started will not start. Terminate returns once the
// runner has confirmed the terminal state or ctx expires.
func (f *Future) Terminate(ctx context.Context) error {
	defer runtime.KeepAlive(f)

	h := f.h

	h.mu.Lock()
	if h.state.Done() {
		h.mu.Unlock()

		return nil
	}

	h.termRequested = true

	if h.state == StateNotStarted {
		// The runner has not spawned anything yet and it checks the
		// termination flag before every spawn, so nothing will start.
		h.mu.Unlock()

		select {
		case <-h.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	procs := slices.Clone(h.procs)
	h.mu.Unlock()

	for _, p := range procs {
		_ = p.Terminate() // Best effort; the stage may have exited already.
	}

	grace := time.NewTimer(terminationGrace)
	defer grace.Stop()

	select {
	case <-h.done:
		return nil
	case <-grace.C:
	case <-ctx.Done():
	}

	h.mu.Lock()
	procs = slices.Clone(h.procs)
	h.mu.Unlock()

	var errs *multierror.Error

	for _, p := range procs {
		if err := p.Kill(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	select {
	case <-h.done:
	case <-ctx.Done():
		errs = multierror.Append(errs, ctx.Err())
	}

	return errs.ErrorOrNil()
}

// reap is the cleanup hook for Futures that become unreachable. A failure
// status nobody waited on would otherwise vanish silently, so it is logged.
// Still-running executions are terminated: an unreferenced Future can never
// be waited on again.
func reap(h *handle) {
	select {
	case <-h.done:
		if !h.waited.Load() {
			h.mu.Lock()
			state, err := h.state, h.err
			h.mu.Unlock()

			if state == StateFailed {
				ctxlog.Warn(context.Background(),
					"discarding unwaited failed execution",
					"cmdline", h.cmdline, "error", err)
			}
		}
	default:
		ctxlog.Warn(context.Background(),
			"terminating abandoned background execution", "cmdline", h.cmdline)

		h.mu.Lock()
		h.termRequested = true
		procs := slices.Clone(h.procs)
		h.mu.Unlock()

		for _, p := range procs {
			_ = p.Kill() // Best effort.
		}
	}
}
