// Package cmd wires outpack's subcommands onto a urfave/cli/v3 root
// command: init, search, parse, api-server, and schema.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/json"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli-altsrc/v3/yaml"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// Version defines the version of the binary, and is meant to be set with ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

// flagSourcesFn builds the layered value-source chain (config file, then
// environment variable) shared by the flags across the command tree that a
// config file can set; --config itself and parse's --pretty do not use it.
type flagSourcesFn func(configFileKey, envVar string) cli.ValueSourceChain

// New builds the outpack root command.
func New() *cli.Command {
	var otelShutdown func(context.Context) error

	var configPath string

	flagSources := func(configFileKey, envVar string) cli.ValueSourceChain {
		return cli.NewValueSourceChain(
			toml.TOML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			yaml.YAML(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			json.JSON(configFileKey, altsrc.NewStringPtrSourcer(&configPath)),
			cli.EnvVar(envVar),
		)
	}

	return &cli.Command{
		Name:    "outpack",
		Usage:   "a content-addressed repository of analytical packets",
		Version: Version,
		After: func(ctx context.Context, _ *cli.Command) error {
			if otelShutdown != nil {
				return otelShutdown(ctx)
			}

			return nil
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			var err error

			otelShutdown, err = setupTracing(ctx, cmd.Bool("otel-enabled"))
			if err != nil {
				return ctx, err
			}

			logLvl := cmd.String("log-level")

			lvl, err := zerolog.ParseLevel(logLvl)
			if err != nil {
				return ctx, fmt.Errorf("error parsing the log-level %q: %w", logLvl, err)
			}

			output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: !term.IsTerminal(int(os.Stderr.Fd()))}

			ctx = zerolog.New(output).
				Level(lvl).
				With().
				Timestamp().
				Logger().
				WithContext(ctx)

			return ctx, nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to a configuration file (toml, yaml, or json)",
				Sources:     cli.EnvVars("OUTPACK_CONFIG_FILE"),
				Value:       defaultConfigPath(),
				Destination: &configPath,
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Set the log level",
				Sources: flagSources("log.level", "OUTPACK_LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Emit OpenTelemetry traces to stdout instead of discarding them.",
				Sources: flagSources("opentelemetry.enabled", "OUTPACK_OTEL_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			initCommand(flagSources),
			searchCommand(flagSources),
			parseCommand(),
			apiServerCommand(flagSources),
			schemaCommand(),
		},
	}
}

// defaultConfigPath returns outpack/config.yaml under the platform config directory,
// used when neither --config nor OUTPACK_CONFIG_FILE is set. A missing file
// at this path is not an error: the value-source chain falls through to
// environment variables and flag defaults.
func defaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(configDir, "outpack", "config.yaml")
}
