// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"strings"
)

type gateKind int

const (
	gateAlways gateKind = iota
	gateOnSuccess
	gateOnError
)

func (g gateKind) String() string {
	switch g {
	case gateOnSuccess:
		return "on-success"
	case gateOnError:
		return "on-error"
	default:
		return "always"
	}
}

// stage is one process of a chain: the command plus an optional stderr
// destination. An unset errOut drains into the shared capture buffer.
type stage struct {
	cmd    Command
	errOut Output
}

// chain is one linear pipeline: stages connected stdout to stdin, with the
// head's stdin and the tail's stdout wired to external targets. Its gate
// decides whether it runs, based on the preceding chain's outcome.
type chain struct {
	gate   gateKind
	stages []*stage
	stdin  Input
	stdout Output
}

func (c *chain) String() string {
	parts := make([]string, len(c.stages))
	for i, st := range c.stages {
		parts[i] = st.cmd.String()
	}

	return strings.Join(parts, " | ")
}

// plan is a compiled expression: chains in execution order plus the
// background marker.
type plan struct {
	chains     []*chain
	background bool
}

// compile flattens a validated expression tree into a plan. Builder
// validation has already rejected malformed trees, so the walk only needs to
// reshape.
func compile(e Expr) (*plan, error) {
	p := &plan{}

	if b, ok := e.(*backgroundNode); ok {
		p.background = true
		e = b.inner
	}

	chains, err := flattenSeq(e, gateAlways)
	if err != nil {
		return nil, err
	}

	p.chains = chains

	return p, nil
}

func flattenSeq(e Expr, gate gateKind) ([]*chain, error) {
	if s, ok := e.(*seqNode); ok {
		left, err := flattenSeq(s.left, gate)
		if err != nil {
			return nil, err
		}

		rightGate := gateOnSuccess

		switch s.mode {
		case Or:
			rightGate = gateOnError
		case Then:
			rightGate = gateAlways
		}

		right, err := flattenSeq(s.right, rightGate)
		if err != nil {
			return nil, err
		}

		return append(left, right...), nil
	}

	c, err := buildChain(e)
	if err != nil {
		return nil, err
	}

	c.gate = gate

	return []*chain{c}, nil
}

func buildChain(e Expr) (*chain, error) {
	switch n := e.(type) {
	case Command:
		return &chain{stages: []*stage{{cmd: n}}}, nil

	case *pipeNode:
		left, err := buildChain(n.left)
		if err != nil {
			return nil, err
		}

		right, err := buildChain(n.right)
		if err != nil {
			return nil, err
		}

		left.stages = append(left.stages, right.stages...)
		left.stdout = right.stdout

		return left, nil

	case *redirectNode:
		c, err := buildChain(n.inner)
		if err != nil {
			return nil, err
		}

		switch n.stream {
		case streamIn:
			c.stdin = n.input
		case streamOut:
			c.stdout = n.output
		case streamErr:
			c.stages[len(c.stages)-1].errOut = n.output
		}

		return c, nil

	default:
		return nil, fmt.Errorf("unsupported expression node %T", e)
	}
}
