package cmd

import (
	"context"
	"io"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// setupTracing installs a tracer provider on the global otel package. When
// enabled is false the exporter discards every span; outpack is a CLI and
// library, not a long-running service, so there is no collector to ship
// traces to by default.
func setupTracing(ctx context.Context, enabled bool) (func(context.Context) error, error) {
	writer := io.Discard

	opts := []stdouttrace.Option{stdouttrace.WithWriter(writer)}
	if enabled {
		opts = []stdouttrace.Option{stdouttrace.WithPrettyPrint()}
	}

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	zerolog.Ctx(ctx).Debug().Bool("otel_enabled", enabled).Msg("tracer provider installed")

	return provider.Shutdown, nil
}
