// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"context"
	"errors"
	"io"
	"maps"
	"os"
	"runtime"
	"slices"
	"strings"

	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/matt-FFFFFF/conch/machine"
	"golang.org/x/sync/errgroup"
)

// inheritReader and inheritWriter shield the calling process's own standard
// streams from the machine's closable-stream ownership: machines close any
// closer handed to Spawn, and os.Stdin must survive the stage.
type inheritReader struct{ io.Reader }

type inheritWriter struct{ io.Writer }

// Run executes e in the foreground: it blocks until every stage has exited
// and all captured streams are drained, then returns the result. A failed
// success policy yields an *ExitError carrying per-stage exit codes and
// captured stderr. A Background marker on e is ignored; Run always blocks.
func Run(ctx context.Context, e Expr) (Result, error) {
	if b, ok := e.(*backgroundNode); ok {
		e = b.inner
	}

	f, err := Start(ctx, e)
	if err != nil {
		return Result{}, err
	}

	return f.Wait(ctx)
}

// Start executes e in the background and returns a Future immediately.
// Execution and output draining proceed concurrently; the caller observes
// completion through the Future. Cancelling ctx terminates the execution.
//
// A Future that becomes unreachable without ever being waited on is cleaned
// up: still-running stages are killed and a discarded failure status is
// logged as a warning.
func Start(ctx context.Context, e Expr) (*Future, error) {
	p, err := compile(e)
	if err != nil {
		return nil, err
	}

	h := newHandle(p.String())
	f := &Future{h: h}

	runtime.AddCleanup(f, reap, h)

	go runPlan(ctx, h, p)

	return f, nil
}

// String renders the plan as a shell-style one-liner for logs and errors.
func (p *plan) String() string {
	var sb strings.Builder

	for i, c := range p.chains {
		if i > 0 {
			switch c.gate {
			case gateOnError:
				sb.WriteString(" || ")
			case gateAlways:
				sb.WriteString(" ; ")
			default:
				sb.WriteString(" && ")
			}
		}

		sb.WriteString(c.String())
	}

	if p.background {
		sb.WriteString(" &")
	}

	return sb.String()
}

func runPlan(ctx context.Context, h *handle, p *plan) {
	h.setRunning()

	// Cancelling ctx terminates whatever is alive; the loop below then
	// stops starting new chains.
	go func() {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.termRequested = true
			procs := slices.Clone(h.procs)
			h.mu.Unlock()

			for _, proc := range procs {
				_ = proc.Terminate() // Best effort.
			}
		case <-h.done:
		}
	}()

	var allCodes []int

	lastOK := true

	for _, c := range p.chains {
		if h.terminationRequested() {
			break
		}

		switch c.gate {
		case gateOnSuccess:
			if !lastOK {
				continue
			}
		case gateOnError:
			if lastOK {
				continue
			}
		}

		codes, ok, err := runChain(ctx, h, c)

		h.recordCodes(codes)

		allCodes = append(allCodes, codes...)

		if err != nil {
			ctxlog.Debug(ctx, "chain failed", "cmdline", c.String(), "error", err)
			h.finish(StateFailed, err)

			return
		}

		lastOK = ok
	}

	if h.terminationRequested() {
		h.finish(StateTerminated, ErrTerminated)

		return
	}

	if lastOK {
		h.finish(StateSucceeded, nil)

		return
	}

	h.finish(StateFailed, &ExitError{
		Cmdline:   h.cmdline,
		ExitCodes: allCodes,
		Stderr:    h.stderr.String(),
	})
}

// runChain spawns one linear pipeline and joins all its stages. The returned
// codes hold one exit code per stage in start order; ok is the terminal
// stage's success-policy verdict. A non-nil error means a spawn or wait
// level failure, not a bad exit code.
func runChain(ctx context.Context, h *handle, c *chain) ([]int, bool, error) {
	mach := c.stages[0].cmd.mach
	frame := mach.Context().Snapshot()

	ctxlog.Debug(ctx, "running chain", "machine", mach.String(), "cmdline", c.String())

	specs := make([]*machine.StageSpec, len(c.stages))

	for i, st := range c.stages {
		spec := &machine.StageSpec{
			Path: st.cmd.path,
			Args: slices.Clone(st.cmd.args),
			Dir:  st.cmd.dir,
			Env:  overlayEnv(frame.Env, st.cmd.env),
		}
		if spec.Dir == "" {
			spec.Dir = frame.Dir
		}

		applyStderr(spec, st.errOut, h.stderr)

		specs[i] = spec
	}

	applyStdin(specs[0], c.stdin)
	applyStdout(specs[len(specs)-1], c.stdout, h.stdout)

	// One conduit per adjacent pair: stage i writes it, stage i+1 reads it.
	// Ownership of each end passes to its stage on spawn; ends left over
	// after a spawn failure are closed here.
	links := make([]struct {
		r io.ReadCloser
		w io.WriteCloser
	}, len(specs)-1)

	for i := range links {
		r, w, err := mach.Link()
		if err != nil {
			for _, l := range links[:i] {
				_ = l.r.Close()
				_ = l.w.Close()
			}

			return nil, false, errors.Join(machine.ErrCouldNotStartProcess, err)
		}

		links[i].r, links[i].w = r, w
		specs[i].Stdout = w
		specs[i+1].Stdin = r
	}

	procs := make([]machine.Process, 0, len(specs))

	// abort tears down a partially spawned chain: stages are terminated and
	// reaped, then the link ends not yet owned by a spawned stage are
	// closed. Spawned stages own links[0..i-1] fully; the read end of link
	// i-1 was assigned to the unspawned stage i.
	abort := func(i int) {
		for _, p := range procs {
			_ = p.Terminate()
		}

		for _, p := range procs {
			_, _ = p.Wait()
		}

		if i > 0 {
			_ = links[i-1].r.Close()
		}

		for _, l := range links[i:] {
			_ = l.r.Close()
			_ = l.w.Close()
		}
	}

	for i, spec := range specs {
		if h.terminationRequested() {
			abort(i)

			return nil, false, nil
		}

		p, err := mach.Spawn(ctx, spec)
		if err != nil {
			// No partial pipeline is left running.
			abort(i)

			return nil, false, err
		}

		procs = append(procs, p)

		h.trackProcs(slices.Clone(procs))
	}

	g := &errgroup.Group{}
	codes := make([]int, len(procs))

	for i, p := range procs {
		g.Go(func() error {
			code, err := p.Wait()
			codes[i] = code

			return err
		})
	}

	waitErr := g.Wait()

	h.trackProcs(nil)

	if waitErr != nil {
		return codes, false, waitErr
	}

	last := len(c.stages) - 1
	ok := c.stages[last].cmd.valid.Valid(codes[last])

	return codes, ok, nil
}

func overlayEnv(base, over map[string]string) map[string]string {
	if len(base) == 0 && len(over) == 0 {
		return nil
	}

	env := make(map[string]string, len(base)+len(over))
	maps.Copy(env, base)
	maps.Copy(env, over)

	return env
}

func applyStdin(spec *machine.StageSpec, in Input) {
	switch {
	case in.file != "":
		spec.InFile = in.file
	case in.reader != nil:
		spec.Stdin = in.reader
	case in.inherit:
		spec.Stdin = inheritReader{os.Stdin}
	}
}

func applyStdout(spec *machine.StageSpec, out Output, captured io.Writer) {
	switch {
	case out.file != "":
		spec.OutFile = out.file
		spec.OutAppend = out.appendTo
	case out.writer != nil:
		spec.Stdout = out.writer
	case out.inherit:
		spec.Stdout = inheritWriter{os.Stdout}
	default:
		spec.Stdout = captured
	}
}

func applyStderr(spec *machine.StageSpec, out Output, captured io.Writer) {
	switch {
	case out.file != "":
		spec.ErrFile = out.file
	case out.writer != nil:
		spec.Stderr = out.writer
	case out.inherit:
		spec.Stderr = inheritWriter{os.Stderr}
	default:
		spec.Stderr = captured
	}
}
