// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

// Package cmd contains the command-line interface (CLI) for the module.
package cmd

import (
	"os"

	"github.com/matt-FFFFFF/conch/cmd/run"
	"github.com/matt-FFFFFF/conch/cmd/show"
	"github.com/matt-FFFFFF/conch/cmd/which"
	"github.com/urfave/cli/v3"
)

// RootCmd is the root command for the CLI.
var RootCmd = &cli.Command{
	Commands: []*cli.Command{
		run.RunCmd,
		show.ShowCmd,
		which.WhichCmd,
	},
	Writer:    os.Stdout,
	ErrWriter: os.Stderr,
	Name:      "conch",
	Description: `Conch is a composable command execution engine. Programs are first-class
values that can be bound with arguments, piped, redirected, sequenced and run
in the foreground or background, locally or on a remote host. Scripts are
YAML documents describing a sequence of such commands.`,
	Usage:     "conch run myscript.yaml",
	Copyright: "Copyright (c) matt-FFFFFF 2025. All rights reserved.",
	Authors: []any{
		"Matt White (matt-FFFFFF)",
	},
	EnableShellCompletion: true,
}
