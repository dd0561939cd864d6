package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mrc-ide/outpack-go/pkg/query"
)

func parseCommand() *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "parse a query and print its abstract syntax tree",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Indent the printed tree one clause per line",
			},
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			raw := cmd.Args().First()
			if raw == "" {
				return cli.Exit("parse requires exactly one argument, the query text", 1)
			}

			node, err := query.Parse(raw)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.Root().Writer, query.Describe(node, cmd.Bool("pretty"))) //nolint:errcheck

			return nil
		},
	}
}
