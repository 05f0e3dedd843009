package observe

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/thoughtmap"

// StartSpan starts a span on the globally registered tracer provider. The
// caller must end it, usually through [EndSpan].
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// StartLLMSpan starts the span wrapping one provider call. kind is one of
// [KindConcepts] or [KindFollowups].
func StartLLMSpan(ctx context.Context, kind, model string) (context.Context, trace.Span) {
	return StartSpan(ctx, "extract."+kind,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("thoughtmap.call", kind),
			attribute.String("llm.model", model),
		))
}

// EndSpan marks span as failed when err is non-nil and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CorrelationID identifies the request or operation carried by ctx. The trace
// ID wins; without an active span the chi request ID is used.
func CorrelationID(ctx context.Context) string {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return middleware.GetReqID(ctx)
}

// Logger returns the default logger enriched with whatever identifiers ctx
// carries: trace and span IDs and the HTTP request ID.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := middleware.GetReqID(ctx); id != "" {
		l = l.With(slog.String("request_id", id))
	}
	return l
}
