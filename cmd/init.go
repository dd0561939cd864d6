package cmd

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/mrc-ide/outpack-go/pkg/repo"
)

func initCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "initialise a new outpack repository",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "path-archive",
				Usage:   "Subdirectory used to store human-readable copies of packet files",
				Sources: flagSources("init.path-archive", "OUTPACK_PATH_ARCHIVE"),
			},
			&cli.BoolFlag{
				Name:    "use-file-store",
				Usage:   "Store files content-addressed under .outpack/files rather than per-packet archive copies",
				Sources: flagSources("init.use-file-store", "OUTPACK_USE_FILE_STORE"),
			},
			&cli.BoolFlag{
				Name:    "require-complete-tree",
				Usage:   "Require every dependency of a packet to also be present in the repository",
				Sources: flagSources("init.require-complete-tree", "OUTPACK_REQUIRE_COMPLETE_TREE"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return cli.Exit("init requires exactly one argument, the repository path", 1)
			}

			var pathArchive *string
			if v := cmd.String("path-archive"); v != "" {
				pathArchive = &v
			}

			opts := repo.Options{
				PathArchive:         pathArchive,
				UseFileStore:        cmd.Bool("use-file-store"),
				RequireCompleteTree: cmd.Bool("require-complete-tree"),
			}

			if err := repo.Init(ctx, path, opts); err != nil {
				return err
			}

			zerolog.Ctx(ctx).Info().Str("path", path).Msg("repository initialised")

			return nil
		},
	}
}
