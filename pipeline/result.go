// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package pipeline

import (
	"fmt"
	"io"
	"strings"

	"github.com/matt-FFFFFF/conch/internal/color"
)

// Result is the observable outcome of one execution: its terminal state,
// one exit code per spawned stage in start order, and whatever stdout and
// stderr bytes were captured rather than redirected.
type Result struct {
	State     State
	ExitCodes []int
	Stdout    string
	Stderr    string
}

// Success reports whether the execution reached StateSucceeded.
func (r Result) Success() bool { return r.State == StateSucceeded }

// Code returns the terminal stage's exit code, or -1 when nothing ran.
func (r Result) Code() int {
	if len(r.ExitCodes) == 0 {
		return -1
	}

	return r.ExitCodes[len(r.ExitCodes)-1]
}

// WriteText renders the result as a human-readable report.
func (r Result) WriteText(w io.Writer, label string) error {
	status := color.Colorize(r.State.String(), color.FgGreen, color.Bold)
	if !r.Success() {
		status = color.Colorize(r.State.String(), color.FgRed, color.Bold)
	}

	if _, err := fmt.Fprintf(w, "%s  %s  exit codes %v\n", status, label, r.ExitCodes); err != nil {
		return fmt.Errorf("failed to write result: %w", err)
	}

	if err := writeStream(w, "stdout", r.Stdout); err != nil {
		return err
	}

	return writeStream(w, "stderr", r.Stderr)
}

func writeStream(w io.Writer, name, content string) error {
	if content == "" {
		return nil
	}

	header := color.Colorize("--- "+name+" ---", color.Faint)

	if _, err := fmt.Fprintf(w, "%s\n%s", header, content); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}

	if !strings.HasSuffix(content, "\n") {
		if _, err := io.WriteString(w, "\n"); err != nil {
			return fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	return nil
}
