// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package api provides types for OpenTelemetry tracing support, notably to
// reduce chance of cyclic imports. No implementations besides no-op are here.
package api

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

var _ Tracing = NoopTracing{}

// Tracing gives access to the tracer of chat completion requests.
type Tracing interface {
	// ChatCompletionTracer creates spans for chat completion requests.
	ChatCompletionTracer() ChatCompletionTracer
	// HTTPTransport wraps base so that outgoing upstream requests carry the
	// trace context of their request context.
	HTTPTransport(base http.RoundTripper) http.RoundTripper
	// Shutdown shuts down the tracer, flushing any buffered spans.
	Shutdown(context.Context) error
}

// NoopTracing is a Tracing that doesn't do anything.
type NoopTracing struct{}

// ChatCompletionTracer implements Tracing.ChatCompletionTracer.
func (NoopTracing) ChatCompletionTracer() ChatCompletionTracer {
	return NoopChatCompletionTracer{}
}

// HTTPTransport implements Tracing.HTTPTransport.
func (NoopTracing) HTTPTransport(base http.RoundTripper) http.RoundTripper {
	return base
}

// Shutdown implements Tracing.Shutdown.
func (NoopTracing) Shutdown(context.Context) error {
	return nil
}

// ChatCompletionTracer creates spans for chat completion requests.
type ChatCompletionTracer interface {
	// StartSpan starts a span for the request.
	//
	// Parameters:
	//   - ctx: might include a parent span context.
	//   - headers: Incoming HTTP headers used to extract parent trace context.
	//   - req: The decoded chat completion request.
	//   - body: The raw request body.
	//
	// The returned context carries the new span and should be used for the
	// upstream call. The span is nil unless it is sampled.
	StartSpan(ctx context.Context, headers http.Header, req *openai.ChatCompletionRequest, body []byte) (context.Context, ChatCompletionSpan)
}

// ChatCompletionSpan represents a streamed chat completion.
type ChatCompletionSpan interface {
	// RecordResponseChunk records a chunk sent to the client.
	RecordResponseChunk(resp *openai.ChatCompletionResponseChunk)
	// EndSpanOnError finalizes and ends the span with an error status.
	EndSpanOnError(statusCode int, body []byte)
	// EndSpan finalizes and ends the span.
	EndSpan()
}

// ChatCompletionRecorder records attributes to a span according to a semantic
// convention.
type ChatCompletionRecorder interface {
	// StartParams returns the name and options to start the span with.
	//
	// Note: Do not do any expensive data conversions as the span might not be
	// sampled.
	StartParams(req *openai.ChatCompletionRequest, body []byte) (spanName string, opts []trace.SpanStartOption)
	// RecordRequest records request attributes to the span.
	RecordRequest(span trace.Span, req *openai.ChatCompletionRequest, body []byte)
	// RecordResponseChunks records the attributes of the whole streamed response.
	RecordResponseChunks(span trace.Span, chunks []*openai.ChatCompletionResponseChunk)
	// RecordResponseOnError ends the span with an error status.
	RecordResponseOnError(span trace.Span, statusCode int, body []byte)
}

// NoopChatCompletionTracer is a ChatCompletionTracer that doesn't do anything.
type NoopChatCompletionTracer struct{}

// StartSpan implements ChatCompletionTracer.StartSpan.
func (NoopChatCompletionTracer) StartSpan(ctx context.Context, _ http.Header, _ *openai.ChatCompletionRequest, _ []byte) (context.Context, ChatCompletionSpan) {
	return ctx, nil
}
