// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testotel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// RecordNewSpan starts a span with the given name and options, ends it and
// returns the recorded span.
func RecordNewSpan(t testing.TB, spanName string, opts ...oteltrace.SpanStartOption) tracetest.SpanStub {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	_, span := tp.Tracer("test").Start(t.Context(), spanName, opts...)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return ClearTimestamps(spans[0])
}

// RecordWithSpan executes fn with an internal span named "test" and returns
// the recorded span. fn returns true if it ended the span itself.
func RecordWithSpan(t testing.TB, fn func(oteltrace.Span) bool) tracetest.SpanStub {
	exporter := tracetest.NewInMemoryExporter()
	tp := trace.NewTracerProvider(trace.WithSyncer(exporter))
	_, span := tp.Tracer("test").Start(t.Context(), "test", oteltrace.WithSpanKind(oteltrace.SpanKindInternal))

	if !fn(span) {
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	return ClearTimestamps(spans[0])
}

// ClearTimestamps zeroes the times of the span and its events for comparison.
func ClearTimestamps(span tracetest.SpanStub) tracetest.SpanStub {
	span.StartTime = time.Time{}
	span.EndTime = time.Time{}
	for i := range span.Events {
		span.Events[i].Time = time.Time{}
	}
	return span
}
