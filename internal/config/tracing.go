package config

// TracingConfig holds OpenTelemetry settings. Tracing is off when no
// exporter endpoint is set.
type TracingConfig struct {
	// ExporterEndpoint is the OTLP HTTP endpoint, e.g. http://localhost:4318
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ServiceName      string  `env:"OTEL_SERVICE_NAME" envDefault:"sokos-oppgjorsrapporter"`
	SamplingRate     float64 `env:"OTEL_SAMPLING_RATE" envDefault:"1.0"`
}

// Enabled returns true when an OTLP endpoint is configured.
func (c TracingConfig) Enabled() bool {
	return c.ExporterEndpoint != ""
}
