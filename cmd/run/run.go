// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/TylerBrock/colorjson"
	"github.com/matt-FFFFFF/conch/internal/color"
	"github.com/matt-FFFFFF/conch/internal/ctxlog"
	"github.com/matt-FFFFFF/conch/internal/fetch"
	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/matt-FFFFFF/conch/pipeline"
	"github.com/matt-FFFFFF/conch/script"
	"github.com/urfave/cli/v3"
)

const (
	fileArg     = "file"
	jsonFlag    = "json"
	timeoutFlag = "timeout"
	cliExitStr  = ""
)

// ErrWriteResult is returned when the result cannot be written to the output.
var ErrWriteResult = errors.New("failed to write result")

// RunCmd is the command that runs a script defined in a YAML file.
var RunCmd = &cli.Command{
	Name: "run",
	Description: `Run a script of commands defined in a YAML file.

Script URLs use Hashicorp's go-getter syntax, which allows fetching files
from various sources. See https://github.com/hashicorp/go-getter.

The process exit code mirrors the script's terminal exit code.`,
	Arguments: []cli.Argument{
		&cli.StringArg{
			Name:      fileArg,
			UsageText: "SCRIPTURL",
			Config: cli.StringConfig{
				TrimSpace: true,
			},
		},
	},
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:        jsonFlag,
			Usage:       "Emit the result as colored JSON",
			Value:       false,
			DefaultText: "false",
			TakesFile:   false,
			OnlyOnce:    true,
		},
		&cli.IntFlag{
			Name:    timeoutFlag,
			Aliases: []string{"t"},
			Usage: "Set the maximum time in seconds the script may run. " +
				"Zero means no timeout.",
			Value: 0,
		},
	},
	Action: actionFunc,
}

func actionFunc(ctx context.Context, cmd *cli.Command) error {
	logger := ctxlog.Logger(ctx).With("command", cmd.Name)

	src := cmd.StringArg(fileArg)
	if src == "" {
		return cli.Exit("Please provide a script URL to run", 1)
	}

	data, err := fetch.Get(ctx, src)
	if err != nil {
		logger.Error("failed to get script", "url", src, "error", err)

		return cli.Exit(cliExitStr, 1)
	}

	doc, err := script.Load(data)
	if err != nil {
		logger.Error("failed to load script", "url", src, "error", err)

		return cli.Exit(cliExitStr, 1)
	}

	if t := cmd.Int(timeoutFlag); t > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, time.Duration(t)*time.Second)
		defer cancel()
	}

	m := localhost.New()

	expr, err := doc.Build(ctx, m)
	if err != nil {
		logger.Error("failed to build script", "url", src, "error", err)

		return cli.Exit(cliExitStr, 1)
	}

	res, runErr := pipeline.Run(ctx, expr)

	if err := writeResult(cmd.Writer, doc.Name, res, cmd.Bool(jsonFlag)); err != nil {
		logger.Error("failed to write result", "error", err)

		return cli.Exit(cliExitStr, 1)
	}

	if runErr != nil {
		exitErr := new(pipeline.ExitError)
		if errors.As(runErr, &exitErr) && exitErr.Code() > 0 {
			return cli.Exit(cliExitStr, exitErr.Code())
		}

		logger.Error("script failed", "error", runErr)

		return cli.Exit(cliExitStr, 1)
	}

	return nil
}

func writeResult(w io.Writer, name string, res pipeline.Result, asJSON bool) error {
	if !asJSON {
		return res.WriteText(w, name)
	}

	raw, err := json.Marshal(map[string]any{
		"name":      name,
		"state":     res.State.String(),
		"success":   res.Success(),
		"exitCodes": res.ExitCodes,
		"stdout":    res.Stdout,
		"stderr":    res.Stderr,
	})
	if err != nil {
		return errors.Join(ErrWriteResult, err)
	}

	// colorjson formats generic maps, so round-trip through encoding/json.
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		return errors.Join(ErrWriteResult, err)
	}

	f := colorjson.NewFormatter()
	f.Indent = 2
	f.DisabledColor = !color.Enabled()

	out, err := f.Marshal(obj)
	if err != nil {
		return errors.Join(ErrWriteResult, err)
	}

	if _, err := fmt.Fprintln(w, string(out)); err != nil {
		return errors.Join(ErrWriteResult, err)
	}

	return nil
}
