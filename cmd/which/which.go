// Copyright (c) matt-FFFFFF 2025. All rights reserved.
// SPDX-License-Identifier: MIT

package which

import (
	"context"
	"fmt"

	"github.com/matt-FFFFFF/conch/machine/localhost"
	"github.com/urfave/cli/v3"
)

// WhichCmd locates programs on the local machine's executable search path.
var WhichCmd = &cli.Command{
	Name:        "which",
	Description: "Locate programs on the local machine's executable search path.",
	Usage:       "conch which NAME [NAME...]",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		names := cmd.Args().Slice()
		if len(names) == 0 {
			return cli.Exit("Please provide at least one program name", 1)
		}

		m := localhost.New()
		failed := false

		for _, name := range names {
			path, err := m.Resolve(ctx, name)
			if err != nil {
				fmt.Fprintf(cmd.ErrWriter, "%s not found\n", name) //nolint:errcheck

				failed = true

				continue
			}

			fmt.Fprintln(cmd.Writer, path) //nolint:errcheck
		}

		if failed {
			return cli.Exit("", 1)
		}

		return nil
	},
}
