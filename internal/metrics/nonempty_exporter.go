// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// consoleExporter writes metrics to a writer, skipping the periodic exports that carry no metric.
type consoleExporter struct {
	metric.Exporter
	temporality metricdata.Temporality
}

// newNonEmptyConsoleExporter honors OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE,
// either "cumulative" (default) or "delta".
func newNonEmptyConsoleExporter(w io.Writer) (metric.Exporter, error) {
	temporality, err := parseTemporalityPreference()
	if err != nil {
		return nil, err
	}
	delegate, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, err
	}
	return &consoleExporter{Exporter: delegate, temporality: temporality}, nil
}

func parseTemporalityPreference() (metricdata.Temporality, error) {
	pref := strings.ToLower(os.Getenv("OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE"))
	switch pref {
	case "", "cumulative":
		return metricdata.CumulativeTemporality, nil
	case "delta":
		return metricdata.DeltaTemporality, nil
	default:
		return metricdata.CumulativeTemporality, fmt.Errorf("unsupported OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE value: %q (supported values: cumulative, delta)", pref)
	}
}

// Export implements [metric.Exporter.Export].
func (e *consoleExporter) Export(ctx context.Context, rm *metricdata.ResourceMetrics) error {
	if rm == nil {
		return nil
	}
	for _, sm := range rm.ScopeMetrics {
		if len(sm.Metrics) > 0 {
			return e.Exporter.Export(ctx, rm)
		}
	}
	return nil
}

// Temporality implements [metric.Exporter.Temporality].
func (e *consoleExporter) Temporality(metric.InstrumentKind) metricdata.Temporality {
	return e.temporality
}
