// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package shellquote quotes argument vectors for a POSIX shell so that the
// remote shell reconstructs the original argv byte-for-byte, including empty
// strings and arguments containing quotes, whitespace and metacharacters.
package shellquote

import (
	"regexp"
	"strings"
)

var safe = regexp.MustCompile(`^[\w@%+=:,./-]+$`)

// Quote quotes a single argument for safe use in a POSIX shell command line.
//
// Arguments consisting solely of safe characters are returned unchanged.
// Everything else is wrapped in single quotes; embedded single quotes are
// emitted as '\'' (close quote, escaped quote, reopen quote), which is the
// only escape the POSIX shell honors in this position.
func Quote(s string) string {
	if s == "" {
		return "''"
	}

	if safe.MatchString(s) {
		return s
	}

	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes each argument and joins them with single spaces.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = Quote(arg)
	}

	return strings.Join(quoted, " ")
}
