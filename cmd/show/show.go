// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package show

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/TylerBrock/colorjson"
	"github.com/matt-FFFFFF/conch/internal/color"
	"github.com/matt-FFFFFF/conch/internal/fetch"
	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/matt-FFFFFF/conch/pipeline"
	"github.com/matt-FFFFFF/conch/script"
	"github.com/urfave/cli/v3"
)

const fileArg = "file"

var (
	// ErrBuildScript is returned when the script cannot be loaded or compiled.
	ErrBuildScript = errors.New("failed to build script")
	// ErrWritePlan is returned when the plan cannot be written to stdout.
	ErrWritePlan = errors.New("failed to write plan")
)

// ShowCmd is the command that shows the compiled execution plan of a script
// without running anything.
var ShowCmd = &cli.Command{
	Name: "show",
	Description: `Show the compiled execution plan of a script as colored JSON.
Programs are resolved on the local machine but nothing is executed.`,
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      fileArg,
			UsageText: "SCRIPTURL",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	src := cmd.StringArg(fileArg)
	if src == "" {
		return cli.Exit("Please provide a script URL to show", 1)
	}

	data, err := fetch.Get(ctx, src)
	if err != nil {
		return errors.Join(ErrBuildScript, err)
	}

	doc, err := script.Load(data)
	if err != nil {
		return errors.Join(ErrBuildScript, err)
	}

	expr, err := doc.Build(ctx, localhost.New())
	if err != nil {
		return errors.Join(ErrBuildScript, err)
	}

	desc, err := pipeline.Describe(expr)
	if err != nil {
		return errors.Join(ErrBuildScript, err)
	}

	raw, err := json.Marshal(desc)
	if err != nil {
		return errors.Join(ErrWritePlan, err)
	}

	// colorjson formats generic maps, so round-trip through encoding/json.
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.Join(ErrWritePlan, err)
	}

	f := colorjson.NewFormatter()
	f.Indent = 2
	f.DisabledColor = !color.Enabled()

	out, err := f.Marshal(obj)
	if err != nil {
		return errors.Join(ErrWritePlan, err)
	}

	if _, err := fmt.Fprintln(cmd.Writer, string(out)); err != nil {
		return errors.Join(ErrWritePlan, err)
	}

	return nil
}
