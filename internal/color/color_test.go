// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package color

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsColorCapable(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.False(t, isColorCapable(), "expected color output to be disabled")

	t.Setenv("FORCE_COLOR", "1")
	assert.False(t, isColorCapable(), "expected color output to be disabled as NO_COLOR is still set")

	t.Setenv("NO_COLOR", "")
	assert.True(t, isColorCapable(), "expected color output to be enabled as FORCE_COLOR is set and NO_COLOR is unset")
}

func TestColorizeDisabled(t *testing.T) {
	orig := enabled

	defer func() { enabled = orig }()

	enabled = false

	assert.Equal(t, "hello", Colorize("hello", FgRed))
}

func TestColorizeEnabled(t *testing.T) {
	orig := enabled

	defer func() { enabled = orig }()

	enabled = true

	assert.Equal(t, "\033[31mhello\033[0m", Colorize("hello", FgRed))
	assert.Equal(t, "\033[1;31mhello\033[0m", Colorize("hello", Bold, FgRed))
}
