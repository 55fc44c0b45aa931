// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package tracing provides the OpenTelemetry tracing of chat completion requests.
package tracing

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
	"github.com/chatbridge/chatbridge/internal/tracing/openinference"
	"github.com/chatbridge/chatbridge/internal/version"
)

var _ tracing.Tracing = (*tracingImpl)(nil)

type tracingImpl struct {
	chatCompletionTracer tracing.ChatCompletionTracer
	propagator           propagation.TextMapPropagator
	// shutdown is nil when we didn't create tp.
	shutdown func(context.Context) error
}

// ChatCompletionTracer implements the same method as documented on api.Tracing.
func (t *tracingImpl) ChatCompletionTracer() tracing.ChatCompletionTracer {
	return t.chatCompletionTracer
}

// HTTPTransport implements the same method as documented on api.Tracing.
func (t *tracingImpl) HTTPTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &injectingTransport{base: base, propagator: t.propagator}
}

// Shutdown implements the same method as documented on api.Tracing.
func (t *tracingImpl) Shutdown(ctx context.Context) error {
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// NewTracingFromEnv configures OpenTelemetry tracing based on environment
// variables. Returns a tracing graph that is noop when disabled.
func NewTracingFromEnv(ctx context.Context, stdout io.Writer) (tracing.Tracing, error) {
	// Return no-op tracing if disabled or no exporter/endpoint is configured.
	exporter := os.Getenv("OTEL_TRACES_EXPORTER")
	if os.Getenv("OTEL_SDK_DISABLED") == "true" || exporter == "none" ||
		(exporter == "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "") {
		return tracing.NoopTracing{}, nil
	}

	// The merge order ensures env vars override our default service name.
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),      // Read OTEL_SERVICE_NAME and OTEL_RESOURCE_ATTRIBUTES.
		resource.WithTelemetrySDK(), // Add telemetry SDK info.
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource from env: %w", err)
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("chatbridge"),
		semconv.ServiceVersion(version.String()),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to merge default resources: %w", err)
	}
	res, err = resource.Merge(res, envRes)
	if err != nil {
		return nil, fmt.Errorf("failed to merge env resource: %w", err)
	}

	// Create the tracer provider, special casing console for sync and tests.
	var tp *sdktrace.TracerProvider
	if exporter == "console" {
		stdoutExporter, err := stdouttrace.New(stdouttrace.WithWriter(stdout))
		if err != nil {
			return nil, fmt.Errorf("failed to create console exporter: %w", err)
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithSyncer(stdoutExporter),
			sdktrace.WithResource(res),
		)
	} else { // Configure exporter via ENV variables like OTEL_TRACES_EXPORTER.
		autoExporter, err := autoexport.NewSpanExporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create exporter: %w", err)
		}
		// Configure batcher via ENV variables like OTEL_BSP_SCHEDULE_DELAY.
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(autoExporter),
			sdktrace.WithResource(res),
		)
	}

	// Configure propagation via the OTEL_PROPAGATORS ENV variable.
	propagator := autoprop.NewTextMapPropagator()

	return &tracingImpl{
		chatCompletionTracer: newChatCompletionTracer(
			tp.Tracer("chatbridge"),
			propagator,
			openinference.NewChatCompletionRecorderFromEnv(),
		),
		propagator: propagator,
		shutdown:   tp.Shutdown, // we have to shut down what we create.
	}, nil
}

// NewTracing returns a tracing graph on an existing tracer. It is noop when
// the tracer is.
func NewTracing(tracer trace.Tracer, propagator propagation.TextMapPropagator, recorder tracing.ChatCompletionRecorder) tracing.Tracing {
	cct := newChatCompletionTracer(tracer, propagator, recorder)
	if _, ok := cct.(tracing.NoopChatCompletionTracer); ok {
		return tracing.NoopTracing{}
	}
	return &tracingImpl{chatCompletionTracer: cct, propagator: propagator}
}
