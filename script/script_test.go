// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package script

import (
	"context"
	"runtime"
	"strings"
	"testing"

	"github.com/matt-FFFFFF/conch/machine"
	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/matt-FFFFFF/conch/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("requires POSIX userland")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{
			name:    "not yaml",
			yaml:    "steps: [",
			wantErr: ErrInvalidYaml,
		},
		{
			name:    "no steps",
			yaml:    "name: empty\n",
			wantErr: ErrNoSteps,
		},
		{
			name:    "missing run",
			yaml:    "steps:\n  - name: broken\n",
			wantErr: ErrInvalidStep,
		},
		{
			name: "any_exit conflicts with success_codes",
			yaml: `steps:
  - run: "true"
    any_exit: true
    success_codes: [0, 1]
`,
			wantErr: ErrInvalidStep,
		},
		{
			name: "bad gate",
			yaml: `steps:
  - run: "true"
  - run: echo
    on: sometimes
`,
			wantErr: ErrInvalidStep,
		},
		{
			name: "first step cannot gate on error",
			yaml: `steps:
  - run: echo
    on: error
`,
			wantErr: ErrInvalidStep,
		},
		{
			name: "pipe entry with stdin_file",
			yaml: `steps:
  - run: echo
    pipe:
      - run: wc
        stdin_file: /tmp/in
`,
			wantErr: ErrInvalidStep,
		},
		{
			name: "valid",
			yaml: `name: demo
steps:
  - name: greet
    run: echo
    args: ["hello"]
    pipe:
      - run: wc
        args: ["-l"]
  - run: "true"
    on: success
`,
			wantErr: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := Load([]byte(tt.yaml))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "demo", doc.Name)
			assert.Len(t, doc.Steps, 2)
		})
	}
}

func TestBuildAndRun(t *testing.T) {
	skipOnWindows(t)

	doc, err := Load([]byte(`name: demo
steps:
  - name: greet
    run: echo
    args: ["hello world"]
    pipe:
      - run: wc
        args: ["-l"]
`))
	require.NoError(t, err)

	m := localhost.New()

	expr, err := doc.Build(context.Background(), m)
	require.NoError(t, err)

	res, err := pipeline.Run(context.Background(), expr)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "1", strings.TrimSpace(res.Stdout))
}

func TestBuildGates(t *testing.T) {
	skipOnWindows(t)

	doc, err := Load([]byte(`steps:
  - run: "false"
  - run: echo
    args: ["skipped"]
    on: success
  - run: echo
    args: ["recovered"]
    on: error
  - run: echo
    args: ["finally"]
    on: always
`))
	require.NoError(t, err)

	m := localhost.New()

	expr, err := doc.Build(context.Background(), m)
	require.NoError(t, err)

	res, err := pipeline.Run(context.Background(), expr)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.NotContains(t, res.Stdout, "skipped")
	assert.Contains(t, res.Stdout, "recovered")
	assert.Contains(t, res.Stdout, "finally")
}

func TestBuildSuccessCodes(t *testing.T) {
	skipOnWindows(t)

	doc, err := Load([]byte(`steps:
  - run: sh
    args: ["-c", "exit 3"]
    success_codes: [0, 3]
`))
	require.NoError(t, err)

	m := localhost.New()

	expr, err := doc.Build(context.Background(), m)
	require.NoError(t, err)

	res, err := pipeline.Run(context.Background(), expr)
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, []int{3}, res.ExitCodes)
}

func TestBuildResolvesAgainstMachine(t *testing.T) {
	doc, err := Load([]byte(`steps:
  - run: definitely-not-a-real-program-xyz
`))
	require.NoError(t, err)

	m := localhost.New()

	_, err = doc.Build(context.Background(), m)
	require.ErrorIs(t, err, machine.ErrCommandNotFound)
}
