// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	"github.com/chatbridge/chatbridge/internal/testing/testotel"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
	"github.com/chatbridge/chatbridge/internal/tracing/openinference"
)

// clearEnv clears any OTEL configuration that could exist in the environment.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OTEL_SDK_DISABLED",
		"OTEL_TRACES_EXPORTER",
		"OTEL_EXPORTER_OTLP_ENDPOINT",
		"OTEL_SERVICE_NAME",
		"OTEL_PROPAGATORS",
		"OTEL_RESOURCE_ATTRIBUTES",
	} {
		t.Setenv(key, "")
	}
}

func TestNewTracingFromEnv_noop(t *testing.T) {
	for _, tc := range []struct {
		name string
		env  map[string]string
	}{
		{name: "nothing configured"},
		{name: "sdk disabled", env: map[string]string{"OTEL_SDK_DISABLED": "true", "OTEL_TRACES_EXPORTER": "console"}},
		{name: "exporter none", env: map[string]string{"OTEL_TRACES_EXPORTER": "none", "OTEL_EXPORTER_OTLP_ENDPOINT": "http://127.0.0.1:4318"}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			result, err := NewTracingFromEnv(t.Context(), &bytes.Buffer{})
			require.NoError(t, err)
			require.Equal(t, tracing.NoopTracing{}, result)
		})
	}
}

func TestNewTracingFromEnv_console(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_TRACES_EXPORTER", "console")
	t.Setenv("OTEL_SERVICE_NAME", "my-service")

	var stdout bytes.Buffer
	result, err := NewTracingFromEnv(t.Context(), &stdout)
	require.NoError(t, err)
	t.Cleanup(func() { _ = result.Shutdown(context.Background()) })

	_, span := result.ChatCompletionTracer().StartSpan(t.Context(), http.Header{}, &openai.ChatCompletionRequest{Model: "m"}, []byte(`{"model":"m"}`))
	require.NotNil(t, span)
	span.EndSpan()

	// The console exporter is synchronous.
	require.Contains(t, stdout.String(), `"Name":"ChatCompletion"`)
	require.Contains(t, stdout.String(), "my-service")
}

func TestNewTracingFromEnv_otlp(t *testing.T) {
	clearEnv(t)
	collector := testotel.StartOTLPCollector(t)

	result, err := NewTracingFromEnv(t.Context(), &bytes.Buffer{})
	require.NoError(t, err)

	_, span := result.ChatCompletionTracer().StartSpan(t.Context(), http.Header{}, &openai.ChatCompletionRequest{Model: "m"}, []byte(`{"model":"m"}`))
	require.NotNil(t, span)
	span.EndSpan()
	require.NoError(t, result.Shutdown(t.Context()))

	exported := collector.TakeSpan()
	require.NotNil(t, exported)
	require.Equal(t, "ChatCompletion", exported.Name)
}

func TestNewTracingFromEnv_invalidResource(t *testing.T) {
	clearEnv(t)
	t.Setenv("OTEL_TRACES_EXPORTER", "console")
	t.Setenv("OTEL_RESOURCE_ATTRIBUTES", "invalid")

	_, err := NewTracingFromEnv(t.Context(), &bytes.Buffer{})
	require.ErrorContains(t, err, "failed to create resource from env")
}

func TestNewTracing(t *testing.T) {
	recorder := openinference.NewChatCompletionRecorder(&openinference.TraceConfig{})
	propagator := propagation.TraceContext{}

	t.Run("noop tracer", func(t *testing.T) {
		require.Equal(t, tracing.NoopTracing{}, NewTracing(noop.Tracer{}, propagator, recorder))
	})

	t.Run("sdk tracer", func(t *testing.T) {
		exporter := tracetest.NewInMemoryExporter()
		tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		result := NewTracing(tp.Tracer("test"), propagator, recorder)
		require.IsType(t, &tracingImpl{}, result)
		// Shutdown does not own the provider.
		require.NoError(t, result.Shutdown(t.Context()))

		_, span := result.ChatCompletionTracer().StartSpan(t.Context(), http.Header{}, &openai.ChatCompletionRequest{Model: "m"}, nil)
		span.EndSpan()
		require.Len(t, exporter.GetSpans(), 1)
	})
}
