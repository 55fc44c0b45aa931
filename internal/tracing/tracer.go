// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
)

// Ensure chatCompletionTracer implements ChatCompletionTracer.
var _ tracing.ChatCompletionTracer = (*chatCompletionTracer)(nil)

func newChatCompletionTracer(tracer trace.Tracer, propagator propagation.TextMapPropagator, recorder tracing.ChatCompletionRecorder) tracing.ChatCompletionTracer {
	// Check if the tracer is a no-op by checking its type.
	if _, ok := tracer.(noop.Tracer); ok {
		return tracing.NoopChatCompletionTracer{}
	}
	return &chatCompletionTracer{
		tracer:     tracer,
		propagator: propagator,
		recorder:   recorder,
	}
}

type chatCompletionTracer struct {
	tracer     trace.Tracer
	recorder   tracing.ChatCompletionRecorder
	propagator propagation.TextMapPropagator
}

// StartSpan implements ChatCompletionTracer.StartSpan.
func (t *chatCompletionTracer) StartSpan(ctx context.Context, headers http.Header, req *openai.ChatCompletionRequest, body []byte) (context.Context, tracing.ChatCompletionSpan) {
	// Extract trace context from incoming headers.
	parentCtx := t.propagator.Extract(ctx, propagation.HeaderCarrier(headers))

	spanName, opts := t.recorder.StartParams(req, body)
	newCtx, span := t.tracer.Start(parentCtx, spanName, opts...)

	// Only record request attributes if span is recording (sampled).
	// This avoids expensive body processing for unsampled spans.
	if !span.IsRecording() {
		// The context is still returned so that propagation works for unsampled spans.
		return newCtx, nil
	}
	t.recorder.RecordRequest(span, req, body)
	return newCtx, &chatCompletionSpan{span: span, recorder: t.recorder}
}

// injectingTransport writes the trace context of each request context into
// its headers.
type injectingTransport struct {
	base       http.RoundTripper
	propagator propagation.TextMapPropagator
}

// RoundTrip implements [http.RoundTripper.RoundTrip].
func (t *injectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not modify the request.
	req = req.Clone(req.Context())
	t.propagator.Inject(req.Context(), propagation.HeaderCarrier(req.Header))
	return t.base.RoundTrip(req)
}
