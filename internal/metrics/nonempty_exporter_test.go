// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/instrumentation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
)

func TestNewNonEmptyConsoleExporter_temporality(t *testing.T) {
	for _, tc := range []struct {
		env    string
		exp    metricdata.Temporality
		expErr string
	}{
		{env: "", exp: metricdata.CumulativeTemporality},
		{env: "cumulative", exp: metricdata.CumulativeTemporality},
		{env: "Delta", exp: metricdata.DeltaTemporality},
		{env: "sometimes", expErr: `unsupported OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE value: "sometimes"`},
	} {
		t.Run(tc.env, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("OTEL_EXPORTER_OTLP_METRICS_TEMPORALITY_PREFERENCE", tc.env)

			exp, err := newNonEmptyConsoleExporter(&bytes.Buffer{})
			if tc.expErr != "" {
				require.ErrorContains(t, err, tc.expErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, exp.Temporality(sdkmetric.InstrumentKindCounter))
			require.Equal(t, tc.exp, exp.Temporality(sdkmetric.InstrumentKindHistogram))
			require.NotNil(t, exp.Aggregation(sdkmetric.InstrumentKindCounter))
			require.NoError(t, exp.ForceFlush(t.Context()))
			require.NoError(t, exp.Shutdown(t.Context()))
		})
	}
}

func TestConsoleExporter_Export(t *testing.T) {
	withMetric := &metricdata.ResourceMetrics{
		Resource: resource.Default(),
		ScopeMetrics: []metricdata.ScopeMetrics{
			{Scope: instrumentation.Scope{Name: "empty"}},
			{
				Scope: instrumentation.Scope{Name: "test-scope"},
				Metrics: []metricdata.Metrics{{
					Name: "test.counter",
					Data: metricdata.Sum[int64]{
						DataPoints:  []metricdata.DataPoint[int64]{{Attributes: attribute.NewSet(), Value: 42}},
						Temporality: metricdata.CumulativeTemporality,
						IsMonotonic: true,
					},
				}},
			},
		},
	}
	for _, tc := range []struct {
		name         string
		rm           *metricdata.ResourceMetrics
		expectOutput bool
	}{
		{name: "nil", rm: nil},
		{name: "no scope", rm: &metricdata.ResourceMetrics{Resource: resource.Default()}},
		{
			name: "scope without metrics",
			rm: &metricdata.ResourceMetrics{
				Resource:     resource.Default(),
				ScopeMetrics: []metricdata.ScopeMetrics{{Scope: instrumentation.Scope{Name: "test-scope"}}},
			},
		},
		{name: "metrics", rm: withMetric, expectOutput: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearEnv(t)
			var buf bytes.Buffer
			exp, err := newNonEmptyConsoleExporter(&buf)
			require.NoError(t, err)

			require.NoError(t, exp.Export(t.Context(), tc.rm))
			if tc.expectOutput {
				require.Contains(t, buf.String(), "test.counter")
			} else {
				require.Empty(t, strings.TrimSpace(buf.String()))
			}
		})
	}
}

func TestConsoleExporter_periodicReader(t *testing.T) {
	clearEnv(t)
	var buf bytes.Buffer
	exp, err := newNonEmptyConsoleExporter(&buf)
	require.NoError(t, err)

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)))
	defer func() {
		_ = mp.Shutdown(context.Background())
	}()

	require.NoError(t, mp.ForceFlush(t.Context()))
	require.Empty(t, strings.TrimSpace(buf.String()))

	counter, err := mp.Meter("test").Int64Counter("test.counter")
	require.NoError(t, err)
	counter.Add(t.Context(), 1)

	require.NoError(t, mp.ForceFlush(t.Context()))
	require.Contains(t, buf.String(), "test.counter")
}
