// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package metrics provides the OpenTelemetry metrics of the gateway.
package metrics

import (
	"context"
	"io"
	"os"

	"go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/chatbridge/chatbridge/internal/version"
)

// NewMetricsFromEnv configures an OpenTelemetry MeterProvider based on environment variables,
// always incorporating the provided Prometheus reader. It optionally includes additional exporters
// (console or OTLP) if enabled via environment variables. The function returns a metric.Meter
// for instrumentation and a shutdown function to gracefully close the provider.
//
// The stdout parameter directs output for the console exporter (use os.Stdout in production).
// Environment variables checked directly include:
//   - OTEL_SDK_DISABLED: If "true", disables OTEL exporters.
//   - OTEL_METRICS_EXPORTER: Supported values are "none", "console", "prometheus", "otlp".
//   - OTEL_EXPORTER_OTLP_ENDPOINT or OTEL_EXPORTER_OTLP_METRICS_ENDPOINT: Enables OTLP if set.
//
// Prometheus is always enabled via the provided promReader; other exporters are added conditionally.
func NewMetricsFromEnv(ctx context.Context, stdout io.Writer, promReader sdkmetric.Reader) (metric.Meter, func(context.Context) error, error) {
	var options []sdkmetric.Option
	options = append(options, sdkmetric.WithReader(promReader))

	if os.Getenv("OTEL_SDK_DISABLED") != "true" {
		exporter := os.Getenv("OTEL_METRICS_EXPORTER")
		hasOTLPEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" ||
			os.Getenv("OTEL_EXPORTER_OTLP_METRICS_ENDPOINT") != ""

		// Proceed if exporter is "console" or if OTLP is implied (not "none" or "prometheus" with endpoint set).
		if exporter == "console" || (exporter != "none" && exporter != "prometheus" && hasOTLPEndpoint) {
			res, err := newResource(ctx)
			if err != nil {
				return nil, nil, err
			}
			options = append(options, sdkmetric.WithResource(res))

			if exporter == "console" {
				exp, err := newNonEmptyConsoleExporter(stdout)
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
			} else {
				// autoexport handles the PeriodicReader for OTLP.
				otelReader, err := autoexport.NewMetricReader(ctx)
				if err != nil {
					return nil, nil, err
				}
				options = append(options, sdkmetric.WithReader(otelReader))
			}
		}
	}

	mp := sdkmetric.NewMeterProvider(options...)
	return mp.Meter("chatbridge"), mp.Shutdown, nil
}

// newResource merges the default resource, a fallback service name and the
// environment overrides, in that order.
func newResource(ctx context.Context) (*resource.Resource, error) {
	envRes, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, err
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName("chatbridge"),
		semconv.ServiceVersion(version.String()),
	))
	if err != nil {
		return nil, err
	}
	return resource.Merge(res, envRes)
}
