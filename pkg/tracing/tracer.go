// Package tracing starts spans for the processing loops and outbound calls.
//
// Without a registered TracerProvider the global no-op provider is used and
// every call is inert, so tests and local runs need no setup.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "oppgjorsrapporter"

// Attribute keys shared by the spans of this service.
const (
	OrderID   = attribute.Key("oppgjor.order.id")
	ReportID  = attribute.Key("oppgjor.report.id")
	System    = attribute.Key("oppgjor.notification.system")
	MessageID = attribute.Key("oppgjor.queue.message_id")
	Outcome   = attribute.Key("oppgjor.outcome")
)

// Start creates a span as a child of the span in ctx, or a root span when
// ctx carries none. The caller must end it.
//
//	ctx, span := tracing.Start(ctx, "processor.process_order")
//	defer span.End()
func Start(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on span and marks it as failed. A nil err is ignored.
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Headers returns the propagation headers for the span in ctx, for
// outbound HTTP calls. It is empty when ctx carries no sampled span.
func Headers(ctx context.Context) http.Header {
	h := http.Header{}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(h))
	return h
}
