// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StartSpan creates a new span from the context using the global tracer.
//
// # Description
//
// Convenience wrapper that uses otel.Tracer() to create spans without
// explicitly managing tracer instances.
//
// # Inputs
//
//   - ctx: Parent context. May contain existing span context.
//   - tracerName: Tracer name (typically package path, e.g., "research.analysis").
//   - spanName: Span name (typically "Type.Method" or operation name).
//   - opts: Optional span start options (attributes, links, etc.).
//
// # Example
//
//	func (p *Pipeline) Run(ctx context.Context, ...) {
//	    ctx, span := telemetry.StartSpan(ctx, "research.analysis", "Pipeline.Run")
//	    defer span.End()
//	    // ... run stages
//	}
//
// # Thread Safety
//
// Safe for concurrent use.
func StartSpan(ctx context.Context, tracerName, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, spanName, opts...)
}

// RecordError records an error on the span with proper status.
//
// # Description
//
// Records the error as a span event and sets the span status to Error.
// If the span or error is nil, this is a no-op.
//
// # Example
//
//	result, err := ensemble.Answer(ctx, req)
//	if err != nil {
//	    telemetry.RecordError(span, err, attribute.String("model", req.Model))
//	    return err
//	}
//
// # Thread Safety
//
// Safe for concurrent use.
func RecordError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if span == nil || err == nil {
		return
	}
	opts := make([]trace.EventOption, 0, 1)
	if len(attrs) > 0 {
		opts = append(opts, trace.WithAttributes(attrs...))
	}
	span.RecordError(err, opts...)
	span.SetStatus(codes.Error, err.Error())
}

// SetSpanOK marks the span as successful.
//
// Safe to call with a nil span.
func SetSpanOK(span trace.Span) {
	if span == nil {
		return
	}
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds a timestamped event to the span with optional
// attributes. Safe to call with a nil span.
//
// # Example
//
//	telemetry.AddSpanEvent(span, "cache_miss", attribute.String("key", cacheKey))
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	if span == nil {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// TraceID returns the trace ID from the context as a string, or the
// empty string when no valid span context is present.
//
// # Example
//
//	logger.Info("pipeline complete", slog.String("trace_id", telemetry.TraceID(ctx)))
func TraceID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.TraceID().String()
}

// SpanID returns the span ID from the context as a string, or the
// empty string when no valid span context is present.
func SpanID(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return ""
	}
	return spanCtx.SpanID().String()
}

// HasActiveSpan returns true if the context contains a valid, recording
// span. Useful for conditional instrumentation.
func HasActiveSpan(ctx context.Context) bool {
	span := trace.SpanFromContext(ctx)
	return span.SpanContext().IsValid() && span.IsRecording()
}

// LoggerWithTrace returns a logger carrying the context's trace and
// span IDs so log lines correlate with spans in Grafana/Loki.
//
// # Description
//
// When the context has no valid span the logger is returned unchanged.
// A nil logger falls back to slog.Default().
//
// # Example
//
//	log := telemetry.LoggerWithTrace(ctx, slog.Default())
//	log.Info("stage complete", "stage", cfg.Name)
//
// # Thread Safety
//
// Safe for concurrent use.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	if ctx == nil {
		return logger
	}
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", spanCtx.TraceID().String()),
		slog.String("span_id", spanCtx.SpanID().String()),
	)
}
