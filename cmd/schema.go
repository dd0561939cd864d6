package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/mrc-ide/outpack-go/pkg/query"
)

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "print the JSON schema for the query language's abstract syntax tree",
		Action: func(_ context.Context, cmd *cli.Command) error {
			data, err := query.MarshalSchema()
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.Root().Writer, string(data)) //nolint:errcheck

			return nil
		},
	}
}
