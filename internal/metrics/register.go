// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import "go.opentelemetry.io/otel/metric"

// histogramSpec describes a float64 histogram and its bucket boundaries.
type histogramSpec struct {
	name        string
	description string
	unit        string
	buckets     []float64
}

func (h histogramSpec) register(meter metric.Meter) metric.Float64Histogram {
	return must(meter.Float64Histogram(h.name,
		metric.WithDescription(h.description),
		metric.WithUnit(h.unit),
		metric.WithExplicitBucketBoundaries(h.buckets...),
	))
}

// must panics when an instrument cannot be created. This only happens with an
// invalid name or unit, which are constants here.
func must[T any](instrument T, err error) T {
	if err != nil {
		panic(err)
	}
	return instrument
}
