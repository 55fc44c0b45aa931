// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testotel

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectMetric returns the data of the named metric, or nil when nothing was recorded.
func collectMetric(t testing.TB, reader metric.Reader, name string) metricdata.Aggregation {
	var data metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &data))
	for _, sm := range data.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m.Data
			}
		}
	}
	return nil
}

// GetCounterValue returns the value of a float64 counter with the given attributes.
func GetCounterValue(t testing.TB, reader metric.Reader, name string, attrs attribute.Set) float64 {
	if sum, ok := collectMetric(t, reader, name).(metricdata.Sum[float64]); ok {
		for _, dp := range sum.DataPoints {
			if dp.Attributes.Equals(&attrs) {
				return dp.Value
			}
		}
	}
	t.Fatalf("no counter value found for metric %s with attributes: %v", name, attrs)
	return 0.0
}

// GetHistogramValues returns the count and sum of a histogram metric with the given attributes.
func GetHistogramValues(t testing.TB, reader metric.Reader, name string, attrs attribute.Set) (uint64, float64) {
	var dataPoints []metricdata.HistogramDataPoint[float64]
	if hist, ok := collectMetric(t, reader, name).(metricdata.Histogram[float64]); ok {
		for _, dp := range hist.DataPoints {
			if dp.Attributes.Equals(&attrs) {
				dataPoints = append(dataPoints, dp)
			}
		}
	}
	require.Len(t, dataPoints, 1, "found %d datapoints for attributes: %v", len(dataPoints), attrs)
	return dataPoints[0].Count, dataPoints[0].Sum
}

// RequireNoMetric fails when anything was recorded for the named metric.
func RequireNoMetric(t testing.TB, reader metric.Reader, name string) {
	require.Nil(t, collectMetric(t, reader, name), "unexpected data for metric %s", name)
}
