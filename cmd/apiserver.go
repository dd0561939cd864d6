package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/mrc-ide/outpack-go/pkg/server"
)

func apiServerCommand(flagSources flagSourcesFn) *cli.Command {
	return &cli.Command{
		Name:  "api-server",
		Usage: "serve a repository's HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "root",
				Usage:    "Path to the outpack repository",
				Sources:  flagSources("api-server.root", "OUTPACK_ROOT"),
				Required: true,
			},
			&cli.StringFlag{
				Name:    "addr",
				Usage:   "Address to listen on",
				Sources: flagSources("api-server.addr", "OUTPACK_ADDR"),
				Value:   ":8080",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger := zerolog.Ctx(ctx).With().Str("cmd", "api-server").Logger()
			ctx = logger.WithContext(ctx)

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(ctx, logger, cmd.String("root"))
			if err != nil {
				return fmt.Errorf("error constructing the API server: %w", err)
			}

			httpServer := &http.Server{
				BaseContext:       func(net.Listener) context.Context { return ctx },
				Addr:              cmd.String("addr"),
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second, //nolint:mnd
			}

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				<-gctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second) //nolint:mnd
				defer cancel()

				logger.Info().Msg("API server shutting down")

				return httpServer.Shutdown(shutdownCtx)
			})

			g.Go(func() error {
				logger.Info().Str("addr", cmd.String("addr")).Msg("API server started")

				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("error starting the HTTP listener: %w", err)
				}

				return nil
			})

			return g.Wait()
		},
	}
}
