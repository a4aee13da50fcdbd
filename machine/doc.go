// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package machine abstracts an execution host. A Machine resolves program
// names to executable paths and spawns processes from stage specifications.
// Implementations exist for the local system (machine/localhost) and for
// remote hosts reached over a transport session (machine/sshhost).
//
// Each Machine owns a ContextStack: a stack of working-directory and
// environment overlays. Spawning captures an immutable snapshot of the
// stack, so concurrently running processes are never affected by later
// context mutations on the same Machine.
package machine
