// Package telemetry installs the OpenTelemetry tracer provider. With no
// OTLP endpoint configured a no-op provider is installed instead.
package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
	"github.com/navikt/sokos-oppgjorsrapporter-sub000/pkg/logger"
)

var Module = fx.Module("telemetry",
	fx.Provide(NewTracerProvider),
	fx.Invoke(RegisterLifecycle),
)

// Provider holds the SDK provider. SDK is nil when tracing is disabled.
type Provider struct {
	SDK *sdktrace.TracerProvider
}

// NewTracerProvider builds the OTLP exporter and registers the provider
// and the W3C trace context propagator globally.
func NewTracerProvider(cfg *config.Config, log *slog.Logger) (*Provider, error) {
	log = log.With(logger.Scope("telemetry"))
	tc := cfg.Tracing

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if !tc.Enabled() {
		log.Info("tracing disabled, OTEL_EXPORTER_OTLP_ENDPOINT not set")
		otel.SetTracerProvider(noop.NewTracerProvider())
		return &Provider{}, nil
	}

	exp, err := otlptracehttp.New(context.Background(),
		otlptracehttp.WithEndpointURL(tc.ExporterEndpoint),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(
			semconv.ServiceName(tc.ServiceName),
		),
		resource.WithFromEnv(),
	)
	if err != nil {
		log.Warn("trace resource detection failed", logger.Error(err))
		res = resource.Empty()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(Sampler(tc.SamplingRate)),
	)
	otel.SetTracerProvider(tp)

	log.Info("tracing enabled",
		slog.String("endpoint", tc.ExporterEndpoint),
		slog.String("service", tc.ServiceName),
		slog.Float64("sampling_rate", tc.SamplingRate),
	)
	return &Provider{SDK: tp}, nil
}

// Sampler samples every trace at rate 1 or above and a ratio below it.
// Child spans follow their parent's decision.
func Sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// RegisterLifecycle flushes and shuts down the SDK provider on stop.
func RegisterLifecycle(lc fx.Lifecycle, p *Provider, log *slog.Logger) {
	if p.SDK == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down tracer provider")
			return p.SDK.Shutdown(ctx)
		},
	})
}
