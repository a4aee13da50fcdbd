// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package script loads YAML command programs and compiles them into
// pipeline expressions. A script is a named sequence of steps; each step is
// one command or pipe chain with optional redirections, environment and
// working-directory settings, a success-code policy, and a gate deciding
// whether it runs after the preceding step.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-yaml"
	"github.com/matt-FFFFFF/conch/machine"
	"github.com/matt-FFFFFF/conch/pipeline"
)

var (
	// ErrInvalidYaml is returned when the document cannot be parsed.
	ErrInvalidYaml = errors.New("invalid YAML")
	// ErrNoSteps is returned when the document contains no steps.
	ErrNoSteps = errors.New("no steps specified")
	// ErrInvalidStep is returned when a step fails validation.
	ErrInvalidStep = errors.New("invalid step")
)

// Gate values for Step.On.
const (
	OnAlways  = "always"
	OnSuccess = "success"
	OnError   = "error"
)

// Document is the root of a script file.
type Document struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step is one command of a script. Pipe entries extend the step into a
// pipeline; they may set their own args, env and stderr redirection but not
// stdin, which the pipe feeds.
type Step struct {
	Name         string            `yaml:"name"`
	Run          string            `yaml:"run"`
	Args         []string          `yaml:"args"`
	Env          map[string]string `yaml:"env"`
	Dir          string            `yaml:"dir"`
	SuccessCodes []int             `yaml:"success_codes"`
	AnyExit      bool              `yaml:"any_exit"`
	On           string            `yaml:"on"`
	Pipe         []Step            `yaml:"pipe"`
	StdinFile    string            `yaml:"stdin_file"`
	StdoutFile   string            `yaml:"stdout_file"`
	Append       bool              `yaml:"append"`
	StderrFile   string            `yaml:"stderr_file"`
}

// Load parses and validates a script document.
func Load(data []byte) (*Document, error) {
	doc := new(Document)
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYaml, err)
	}

	if len(doc.Steps) == 0 {
		return nil, ErrNoSteps
	}

	for i := range doc.Steps {
		if err := doc.Steps[i].validate(i == 0); err != nil {
			return nil, err
		}
	}

	return doc, nil
}

func (s *Step) validate(first bool) error {
	if s.Run == "" {
		return fmt.Errorf("%w: %s: run is required", ErrInvalidStep, s.label())
	}

	if s.AnyExit && len(s.SuccessCodes) > 0 {
		return fmt.Errorf("%w: %s: any_exit and success_codes are mutually exclusive",
			ErrInvalidStep, s.label())
	}

	switch s.On {
	case "", OnAlways, OnSuccess, OnError:
	default:
		return fmt.Errorf("%w: %s: on must be %s, %s or %s",
			ErrInvalidStep, s.label(), OnAlways, OnSuccess, OnError)
	}

	if first && s.On == OnError {
		return fmt.Errorf("%w: %s: the first step has no preceding outcome to gate on",
			ErrInvalidStep, s.label())
	}

	for i := range s.Pipe {
		sub := &s.Pipe[i]

		if sub.Run == "" {
			return fmt.Errorf("%w: %s: pipe entries require run", ErrInvalidStep, s.label())
		}

		if sub.On != "" || len(sub.Pipe) > 0 || sub.StdinFile != "" {
			return fmt.Errorf("%w: %s: pipe entries cannot set on, pipe or stdin_file",
				ErrInvalidStep, s.label())
		}
	}

	return nil
}

func (s *Step) label() string {
	if s.Name != "" {
		return s.Name
	}

	return s.Run
}

// Build resolves every step's program on m and compiles the document into
// one expression. Step gates map onto sequence modes: success becomes AND,
// error becomes OR, always runs unconditionally.
func (d *Document) Build(ctx context.Context, m machine.Machine) (pipeline.Expr, error) {
	var expr pipeline.Expr

	for i := range d.Steps {
		step := &d.Steps[i]

		chain, err := step.build(ctx, m)
		if err != nil {
			return nil, err
		}

		if expr == nil {
			expr = chain

			continue
		}

		mode := pipeline.And

		switch step.On {
		case OnError:
			mode = pipeline.Or
		case OnAlways:
			mode = pipeline.Then
		}

		expr, err = pipeline.Seq(expr, chain, mode)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", step.label(), err)
		}
	}

	return expr, nil
}

func (s *Step) build(ctx context.Context, m machine.Machine) (pipeline.Expr, error) {
	cmd, err := s.command(ctx, m)
	if err != nil {
		return nil, err
	}

	var expr pipeline.Expr = cmd

	for i := range s.Pipe {
		sub := &s.Pipe[i]

		var right pipeline.Expr

		right, err = sub.command(ctx, m)
		if err != nil {
			return nil, err
		}

		if sub.StderrFile != "" {
			right, err = pipeline.RedirectErr(right, pipeline.FileOut(sub.StderrFile))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", sub.label(), err)
			}
		}

		expr, err = pipeline.Pipe(expr, right)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.label(), err)
		}
	}

	return s.redirect(expr)
}

func (s *Step) command(ctx context.Context, m machine.Machine) (pipeline.Command, error) {
	cmd, err := pipeline.Resolve(ctx, m, s.Run, s.Args...)
	if err != nil {
		return pipeline.Command{}, fmt.Errorf("%s: %w", s.label(), err)
	}

	if len(s.Env) > 0 {
		cmd = cmd.WithEnv(s.Env)
	}

	if s.Dir != "" {
		cmd = cmd.WithDir(s.Dir)
	}

	switch {
	case s.AnyExit:
		cmd = cmd.WithSuccess(pipeline.AnyRetcode())
	case len(s.SuccessCodes) > 0:
		cmd = cmd.WithSuccess(pipeline.Retcodes(s.SuccessCodes...))
	}

	return cmd, nil
}

// redirect applies the step-level stdio redirections to the built chain.
// The stderr file of the step itself lands on the terminal stage.
func (s *Step) redirect(expr pipeline.Expr) (pipeline.Expr, error) {
	var err error

	if s.StdinFile != "" {
		expr, err = pipeline.RedirectIn(expr, pipeline.FileIn(s.StdinFile))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.label(), err)
		}
	}

	if s.StdoutFile != "" {
		out := pipeline.FileOut(s.StdoutFile)
		if s.Append {
			out = pipeline.AppendOut(s.StdoutFile)
		}

		expr, err = pipeline.RedirectOut(expr, out)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.label(), err)
		}
	}

	if s.StderrFile != "" {
		expr, err = pipeline.RedirectErr(expr, pipeline.FileOut(s.StderrFile))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.label(), err)
		}
	}

	return expr, nil
}
