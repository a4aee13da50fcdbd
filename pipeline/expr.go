// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"io"

	"github.com/matt-FFFFFF/conch/machine"
)

// Expr is a composed command expression: a tree of Commands joined by pipe,
// redirect, sequence and background nodes. Expressions are pure data; they
// hold no OS resources until run.
type Expr interface {
	expr()
}

// SeqMode selects the gating of a sequence's right side.
type SeqMode int

const (
	// And runs the right side only when the left side succeeded.
	And SeqMode = iota
	// Or runs the right side only when the left side failed.
	Or
	// Then runs the right side unconditionally, like shell ;.
	Then
)

// String implements fmt.Stringer.
func (m SeqMode) String() string {
	switch m {
	case Or:
		return "or"
	case Then:
		return "then"
	default:
		return "and"
	}
}

// Input names a source for an expression's standard input. The zero value
// means no input: the head stage observes an immediate EOF.
type Input struct {
	file    string
	reader  io.Reader
	inherit bool
}

// FileIn reads standard input from a file on the stage's machine.
func FileIn(path string) Input { return Input{file: path} }

// ReaderIn feeds standard input from r. If r is an io.Closer it is closed
// once the stage has consumed it.
func ReaderIn(r io.Reader) Input { return Input{reader: r} }

// InheritIn attaches the calling process's own standard input.
func InheritIn() Input { return Input{inherit: true} }

func (in Input) isSet() bool { return in.file != "" || in.reader != nil || in.inherit }

// Output names a destination for an expression's standard output or error.
// The zero value means capture: the bytes are collected into the result.
type Output struct {
	file     string
	appendTo bool
	writer   io.Writer
	inherit  bool
}

// FileOut truncates and writes to a file on the stage's machine.
func FileOut(path string) Output { return Output{file: path} }

// AppendOut appends to a file on the stage's machine.
func AppendOut(path string) Output { return Output{file: path, appendTo: true} }

// WriterOut streams into w. If w is an io.Closer it is closed once the
// stage has finished writing.
func WriterOut(w io.Writer) Output { return Output{writer: w} }

// InheritOut attaches the calling process's own corresponding stream.
func InheritOut() Output { return Output{inherit: true} }

func (out Output) isSet() bool { return out.file != "" || out.writer != nil || out.inherit }

type stream int

const (
	streamIn stream = iota
	streamOut
	streamErr
)

type pipeNode struct {
	left, right Expr
}

func (*pipeNode) expr() {}

type redirectNode struct {
	inner  Expr
	stream stream
	input  Input
	output Output
}

func (*redirectNode) expr() {}

type seqNode struct {
	left, right Expr
	mode        SeqMode
}

func (*seqNode) expr() {}

type backgroundNode struct {
	inner Expr
}

func (*backgroundNode) expr() {}

// Pipe connects left's standard output to right's standard input. Both sides
// must be commands or pipelines on the same machine. Left must not already
// redirect its stdout and right must not already redirect its stdin; pipes
// claim those streams.
func Pipe(left, right Expr) (Expr, error) {
	for _, side := range []Expr{left, right} {
		switch side.(type) {
		case *backgroundNode:
			return nil, ErrInvalidBackgroundPosition
		case *seqNode:
			return nil, ErrInvalidPipeOperand
		}
	}

	if hasRedirect(left, streamOut) {
		return nil, fmt.Errorf("%w: left side's stdout feeds the pipe", ErrInvalidRedirectPosition)
	}

	if hasRedirect(right, streamIn) {
		return nil, fmt.Errorf("%w: right side's stdin is fed by the pipe", ErrConflictingRedirection)
	}

	lm, rm := chainMachine(left), chainMachine(right)
	if lm != rm {
		return nil, fmt.Errorf("%w: %s and %s", ErrCrossMachinePipe, lm, rm)
	}

	return &pipeNode{left: left, right: right}, nil
}

// RedirectIn feeds e's standard input from in. For a pipeline the input
// feeds the head stage.
func RedirectIn(e Expr, in Input) (Expr, error) {
	if err := redirectable(e, streamIn); err != nil {
		return nil, err
	}

	return &redirectNode{inner: e, stream: streamIn, input: in}, nil
}

// RedirectOut sends e's standard output to out. For a pipeline the output
// comes from the terminal stage. Use FileOut for truncation, AppendOut to
// append.
func RedirectOut(e Expr, out Output) (Expr, error) {
	if err := redirectable(e, streamOut); err != nil {
		return nil, err
	}

	return &redirectNode{inner: e, stream: streamOut, output: out}, nil
}

// RedirectErr sends e's standard error to out. For a pipeline this applies
// to the terminal stage; redirect an individual command before piping it to
// capture a non-terminal stage's stderr separately.
func RedirectErr(e Expr, out Output) (Expr, error) {
	if err := redirectable(e, streamErr); err != nil {
		return nil, err
	}

	return &redirectNode{inner: e, stream: streamErr, output: out}, nil
}

// Seq runs left, then gates right on left's outcome per mode. Sequences
// chain left to right like shell && and ||.
func Seq(left, right Expr, mode SeqMode) (Expr, error) {
	for _, side := range []Expr{left, right} {
		if _, ok := side.(*backgroundNode); ok {
			return nil, ErrInvalidBackgroundPosition
		}
	}

	return &seqNode{left: left, right: right, mode: mode}, nil
}

// Background marks the whole expression for asynchronous execution. A
// background expression cannot be composed further.
func Background(e Expr) (Expr, error) {
	if _, ok := e.(*backgroundNode); ok {
		return nil, ErrInvalidBackgroundPosition
	}

	return &backgroundNode{inner: e}, nil
}

func redirectable(e Expr, s stream) error {
	switch e.(type) {
	case *backgroundNode:
		return ErrInvalidBackgroundPosition
	case *seqNode:
		return fmt.Errorf("%w: cannot redirect a sequence", ErrInvalidRedirectPosition)
	}

	if hasRedirect(e, s) {
		return fmt.Errorf("%w: stream already redirected", ErrConflictingRedirection)
	}

	return nil
}

// hasRedirect reports whether s is already claimed anywhere in e. Stdin
// redirects live on the head of a chain and stdout/stderr on its tail, but
// builder validation keeps misplaced ones out, so a plain tree scan is
// exact.
func hasRedirect(e Expr, s stream) bool {
	switch n := e.(type) {
	case *redirectNode:
		return n.stream == s || hasRedirect(n.inner, s)
	case *pipeNode:
		if s == streamIn {
			return hasRedirect(n.left, s)
		}

		return hasRedirect(n.right, s)
	default:
		return false
	}
}

// chainMachine returns the machine a command or pipeline executes on. Pipe
// construction guarantees all stages of a chain share one machine.
func chainMachine(e Expr) machine.Machine {
	switch n := e.(type) {
	case Command:
		return n.mach
	case *redirectNode:
		return chainMachine(n.inner)
	case *pipeNode:
		return chainMachine(n.left)
	default:
		return nil
	}
}
