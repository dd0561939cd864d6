package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mrc-ide/outpack-go/pkg/index"
	"github.com/mrc-ide/outpack-go/pkg/query"
)

func searchCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "evaluate a query against a repository's index",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "root",
				Usage:    "Path to the outpack repository",
				Sources:  flagSources("search.root", "OUTPACK_ROOT"),
				Required: true,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			raw := cmd.Args().First()
			if raw == "" {
				return cli.Exit("search requires exactly one argument, the query text", 1)
			}

			node, err := query.Parse(raw)
			if err != nil {
				return err
			}

			idx, err := index.Build(ctx, cmd.String("root"))
			if err != nil {
				return err
			}

			packets, err := query.Eval(idx, node)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.Root().Writer, query.Format(packets)) //nolint:errcheck

			return nil
		},
	}
}
