// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"testing"

	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCommands(t *testing.T) (Command, Command) {
	t.Helper()

	m := localhost.New()

	return NewCommand(m, "/bin/echo", "hello"), NewCommand(m, "/usr/bin/wc", "-l")
}

func TestPipeRejectsRedirectedStdout(t *testing.T) {
	left, right := testCommands(t)

	redirected, err := RedirectOut(left, FileOut("/tmp/out"))
	require.NoError(t, err)

	_, err = Pipe(redirected, right)
	require.ErrorIs(t, err, ErrInvalidRedirectPosition)
}

func TestPipeRejectsRedirectedStdin(t *testing.T) {
	left, right := testCommands(t)

	redirected, err := RedirectIn(right, FileIn("/tmp/in"))
	require.NoError(t, err)

	_, err = Pipe(left, redirected)
	require.ErrorIs(t, err, ErrConflictingRedirection)
}

func TestPipeRejectsCrossMachine(t *testing.T) {
	a := NewCommand(localhost.New(), "/bin/echo")
	b := NewCommand(localhost.New(), "/usr/bin/wc")

	_, err := Pipe(a, b)
	require.ErrorIs(t, err, ErrCrossMachinePipe)
}

func TestPipeRejectsSequenceOperand(t *testing.T) {
	left, right := testCommands(t)

	seq, err := Seq(left, right, And)
	require.NoError(t, err)

	_, err = Pipe(seq, right)
	require.ErrorIs(t, err, ErrInvalidPipeOperand)
}

func TestPipeRejectsBackgroundOperand(t *testing.T) {
	left, right := testCommands(t)

	bg, err := Background(left)
	require.NoError(t, err)

	_, err = Pipe(bg, right)
	require.ErrorIs(t, err, ErrInvalidBackgroundPosition)
}

func TestDoubleRedirectConflicts(t *testing.T) {
	left, _ := testCommands(t)

	once, err := RedirectOut(left, FileOut("/tmp/a"))
	require.NoError(t, err)

	_, err = RedirectOut(once, FileOut("/tmp/b"))
	require.ErrorIs(t, err, ErrConflictingRedirection)
}

func TestRedirectDifferentStreamsCompose(t *testing.T) {
	left, _ := testCommands(t)

	e, err := RedirectOut(left, FileOut("/tmp/out"))
	require.NoError(t, err)

	e, err = RedirectIn(e, FileIn("/tmp/in"))
	require.NoError(t, err)

	_, err = RedirectErr(e, FileOut("/tmp/err"))
	require.NoError(t, err)
}

func TestRedirectRejectsSequence(t *testing.T) {
	left, right := testCommands(t)

	seq, err := Seq(left, right, And)
	require.NoError(t, err)

	_, err = RedirectOut(seq, FileOut("/tmp/out"))
	require.ErrorIs(t, err, ErrInvalidRedirectPosition)
}

func TestSeqRejectsBackgroundOperand(t *testing.T) {
	left, right := testCommands(t)

	bg, err := Background(right)
	require.NoError(t, err)

	_, err = Seq(left, bg, And)
	require.ErrorIs(t, err, ErrInvalidBackgroundPosition)
}

func TestBackgroundRejectsBackground(t *testing.T) {
	left, _ := testCommands(t)

	bg, err := Background(left)
	require.NoError(t, err)

	_, err = Background(bg)
	require.ErrorIs(t, err, ErrInvalidBackgroundPosition)
}

func TestPipeOfRedirectedPipelineStderr(t *testing.T) {
	// A per-stage stderr redirect composed before piping is valid: the
	// pipe only claims stdout and stdin.
	left, right := testCommands(t)

	redirected, err := RedirectErr(left, FileOut("/tmp/err"))
	require.NoError(t, err)

	piped, err := Pipe(redirected, right)
	require.NoError(t, err)

	desc, err := Describe(piped)
	require.NoError(t, err)
	require.Len(t, desc.Chains, 1)
	require.Len(t, desc.Chains[0].Stages, 2)
	assert.Equal(t, "file:/tmp/err", desc.Chains[0].Stages[0].Stderr)
	assert.Empty(t, desc.Chains[0].Stages[1].Stderr)
}

func TestDescribeSeqGating(t *testing.T) {
	left, right := testCommands(t)

	seq, err := Seq(left, right, And)
	require.NoError(t, err)

	seq, err = Seq(seq, left, Or)
	require.NoError(t, err)

	desc, err := Describe(seq)
	require.NoError(t, err)
	require.Len(t, desc.Chains, 3)
	assert.Equal(t, "always", desc.Chains[0].Gate)
	assert.Equal(t, "on-success", desc.Chains[1].Gate)
	assert.Equal(t, "on-error", desc.Chains[2].Gate)
	assert.Equal(t, "/bin/echo hello && /usr/bin/wc -l || /bin/echo hello", desc.Cmdline)
}

func TestDescribePipeline(t *testing.T) {
	left, right := testCommands(t)

	piped, err := Pipe(left, right)
	require.NoError(t, err)

	withIn, err := RedirectIn(piped, FileIn("/tmp/in"))
	require.NoError(t, err)

	bg, err := Background(withIn)
	require.NoError(t, err)

	desc, err := Describe(bg)
	require.NoError(t, err)
	assert.True(t, desc.Background)
	require.Len(t, desc.Chains, 1)
	assert.Equal(t, "file:/tmp/in", desc.Chains[0].Stdin)
	assert.Equal(t, "capture", desc.Chains[0].Stdout)
	assert.Equal(t, "/bin/echo hello | /usr/bin/wc -l &", desc.Cmdline)
}
