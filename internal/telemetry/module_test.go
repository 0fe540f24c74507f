package telemetry

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/navikt/sokos-oppgjorsrapporter-sub000/internal/config"
)

func TestNewTracerProvider_Disabled(t *testing.T) {
	p, err := NewTracerProvider(&config.Config{}, slog.Default())
	require.NoError(t, err)
	assert.Nil(t, p.SDK)

	_, span := otel.Tracer("test").Start(context.Background(), "noop")
	defer span.End()
	assert.False(t, span.SpanContext().IsValid(), "no-op spans carry no trace id")
}

func TestNewTracerProvider_Enabled(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	cfg := &config.Config{Tracing: config.TracingConfig{
		ExporterEndpoint: "http://127.0.0.1:4318",
		ServiceName:      "sokos-oppgjorsrapporter",
		SamplingRate:     1,
	}}
	p, err := NewTracerProvider(cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, p.SDK)
	assert.Same(t, p.SDK, otel.GetTracerProvider())

	// Nothing was recorded, so shutdown does not need the collector.
	require.NoError(t, p.SDK.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(1).Description())
	assert.Equal(t, sdktrace.AlwaysSample().Description(), Sampler(2).Description())
	assert.Contains(t, Sampler(0.1).Description(), "TraceIDRatioBased{0.1}")
}
