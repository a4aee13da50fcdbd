// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package machine

import (
	"maps"
	"sync"
)

// Frame is one immutable snapshot of a machine's working directory and
// environment overlay.
type Frame struct {
	// Dir is the working directory. Empty means the machine's default.
	Dir string
	// Env is the accumulated environment overlay.
	Env map[string]string
}

// ContextStack is a stack of working-directory/environment frames owned by a
// Machine. Push copies the current top and overlays the given values; the
// returned Scope restores the exact prior state when closed, even if inner
// scopes were left open by an error path.
//
// ContextStack is safe for concurrent use. Spawns take a Snapshot, so
// processes already running are unaffected by later pushes and pops.
type ContextStack struct {
	mu     sync.Mutex
	frames []Frame
}

// NewContextStack returns a stack with a single empty base frame.
func NewContextStack() *ContextStack {
	return &ContextStack{frames: []Frame{{}}}
}

// Scope is a token for one pushed frame. Closing it pops the frame and any
// frames pushed above it that were not popped themselves.
type Scope struct {
	stack *ContextStack
	depth int // stack length before the push
	once  sync.Once
}

// Push overlays dir and env on the current top frame and makes the result
// the new top. An empty dir keeps the current working directory; env entries
// shadow existing ones without mutating prior frames.
func (s *ContextStack) Push(dir string, env map[string]string) *Scope {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := s.frames[len(s.frames)-1]

	next := Frame{
		Dir: top.Dir,
		Env: maps.Clone(top.Env),
	}
	if next.Env == nil && len(env) > 0 {
		next.Env = make(map[string]string, len(env))
	}

	if dir != "" {
		next.Dir = dir
	}

	maps.Copy(next.Env, env)

	scope := &Scope{stack: s, depth: len(s.frames)}
	s.frames = append(s.frames, next)

	return scope
}

// Snapshot returns a copy of the current top frame.
func (s *ContextStack) Snapshot() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	top := s.frames[len(s.frames)-1]

	return Frame{Dir: top.Dir, Env: maps.Clone(top.Env)}
}

// Depth returns the number of frames on the stack, including the base frame.
func (s *ContextStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.frames)
}

// Close pops the scope's frame, restoring the state from before the
// corresponding Push. Frames pushed above this scope and never popped are
// discarded with it. Close is idempotent; closing out of order after an
// ancestor scope has already closed is a no-op.
func (sc *Scope) Close() error {
	sc.once.Do(func() {
		sc.stack.mu.Lock()
		defer sc.stack.mu.Unlock()

		if len(sc.stack.frames) > sc.depth {
			sc.stack.frames = sc.stack.frames[:sc.depth]
		}
	})

	return nil
}
