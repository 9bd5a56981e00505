// Package tracing wraps OpenTelemetry spans for relay operations. Spans go to
// the globally registered tracer provider, a no-op unless the host process
// installs one.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "slackrelay"

// Tracer starts relay and attempt spans.
type Tracer struct {
	tracer trace.Tracer
}

// New creates a Tracer backed by the global provider.
func New() *Tracer {
	return &Tracer{tracer: otel.Tracer(tracerName)}
}

// NewWithProvider creates a Tracer backed by tp.
func NewWithProvider(tp trace.TracerProvider) *Tracer {
	return &Tracer{tracer: tp.Tracer(tracerName)}
}

// StartRelay starts the parent span covering one relay and all its retries.
func (t *Tracer) StartRelay(ctx context.Context, source string, payloadLen int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay",
		trace.WithAttributes(
			attribute.String("relay.source", source),
			attribute.Int("relay.payload_length", payloadLen),
		),
	)
}

// StartAttempt starts a span for a single delivery attempt.
func (t *Tracer) StartAttempt(ctx context.Context, attempt int) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "relay.attempt",
		trace.WithAttributes(attribute.Int("relay.attempt", attempt)),
	)
}

// EndAttempt closes an attempt span. errorKind is empty on success.
func EndAttempt(span trace.Span, errorKind, verdict string) {
	if errorKind != "" {
		span.SetAttributes(
			attribute.String("relay.error_kind", errorKind),
			attribute.String("relay.verdict", verdict),
		)
		span.SetStatus(codes.Error, errorKind)
	}
	span.End()
}

// EndRelay closes the relay span with its final outcome.
func EndRelay(span trace.Span, delivered bool, attempts int, errorKind string) {
	span.SetAttributes(
		attribute.Bool("relay.delivered", delivered),
		attribute.Int("relay.attempts", attempts),
	)
	if !delivered {
		span.SetStatus(codes.Error, errorKind)
	}
	span.End()
}
