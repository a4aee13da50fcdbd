// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestStartReturnsImmediately(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "0.2"))
	require.NoError(t, err)

	assert.False(t, f.State().Done(), "sleep must still be running right after Start")

	res, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestWaitIsIdempotent(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "echo", "once"))
	require.NoError(t, err)

	first, err := f.Wait(context.Background())
	require.NoError(t, err)

	second, err := f.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "once\n", second.Stdout)
}

func TestPollIsNonDestructive(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "0.2"))
	require.NoError(t, err)

	for !f.Poll().State.Done() {
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, StateSucceeded, f.Poll().State)
	assert.Equal(t, StateSucceeded, f.Poll().State, "polling must be repeatable")
}

func TestWaitDeadline(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "0.3"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := f.Wait(ctx)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, StateRunning, res.State, "the execution keeps running past the wait deadline")

	res, err = f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Success())
}

func TestTerminate(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "60"))
	require.NoError(t, err)

	// Wait until the stage is actually spawned before terminating.
	deadline := time.Now().Add(5 * time.Second)
	for f.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, f.Terminate(ctx))

	res, err := f.Wait(context.Background())
	require.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, StateTerminated, res.State)
}

func TestWaitDeadlineDoesNotMarkWaited(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "0.3"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = f.Wait(ctx)
	require.ErrorIs(t, err, ErrTimedOut)
	assert.False(t, f.h.waited.Load(), "a timed out wait never observed the outcome")

	_, err = f.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, f.h.waited.Load())
}

func TestTerminateImmediatelyAfterStart(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "sleep", "60"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// No settling loop here: terminating must hold even before the runner
	// spawns the first stage.
	require.NoError(t, f.Terminate(ctx))

	res, err := f.Wait(context.Background())
	require.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, StateTerminated, res.State)
}

func TestTerminateAfterCompletionIsNoOp(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	f, err := Start(context.Background(), mustResolve(t, m, "echo", "done"))
	require.NoError(t, err)

	_, err = f.Wait(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.Terminate(context.Background()))
	assert.Equal(t, StateSucceeded, f.State())
}

func TestContextCancellationTerminates(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()
	ctx, cancel := context.WithCancel(context.Background())

	f, err := Start(ctx, mustResolve(t, m, "sleep", "60"))
	require.NoError(t, err)

	deadline := time.Now().Add(5 * time.Second)
	for f.State() != StateRunning && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	cancel()

	res, err := f.Wait(context.Background())
	require.ErrorIs(t, err, ErrTerminated)
	assert.Equal(t, StateTerminated, res.State)
}

func TestConcurrentFuturesShareMachine(t *testing.T) {
	skipOnWindows(t)
	defer goleak.VerifyNone(t)

	m := localhost.New()

	scope := m.Context().Push("", map[string]string{"CONCH_FUT": "a"})

	fa, err := Start(context.Background(),
		NewCommand(m, "/bin/sh", "-c", `printf 'x'; sleep 0.2; printf '%s' "$CONCH_FUT"`))
	require.NoError(t, err)

	// The env is bound at spawn; the marker byte proves the stage spawned
	// before the scope closes underneath it.
	deadline := time.Now().Add(5 * time.Second)
	for fa.Poll().Stdout == "" && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	// Mutating the context after spawn must not affect the running future.
	require.NoError(t, scope.Close())

	fb, err := Start(context.Background(),
		NewCommand(m, "/bin/sh", "-c", `printf '%s' "${CONCH_FUT:-unset}"`))
	require.NoError(t, err)

	ra, err := fa.Wait(context.Background())
	require.NoError(t, err)
	rb, err := fb.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "xa", ra.Stdout)
	assert.Equal(t, "unset", rb.Stdout)
}
