// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package testotel provides test utilities for OpenTelemetry tests.
package testotel

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	collecttracev1 "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracev1 "go.opentelemetry.io/proto/otlp/trace/v1"
	"google.golang.org/protobuf/proto"
)

// otlpTimeout is the timeout for spans to read back.
const otlpTimeout = 1 * time.Second // OTEL_BSP_SCHEDULE_DELAY + overhead..

// OTLPCollector is an OTLP/HTTP trace receiver.
type OTLPCollector struct {
	s      *httptest.Server
	spanCh chan *tracev1.Span
}

// StartOTLPCollector starts a test OTLP collector server that receives trace
// data, and points the OTEL environment of the test at it. It is closed when
// the test ends.
func StartOTLPCollector(t testing.TB) *OTLPCollector {
	spanCh := make(chan *tracev1.Span, 16)
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/traces", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		var traces collecttracev1.ExportTraceServiceRequest
		if err := proto.Unmarshal(body, &traces); err != nil {
			http.Error(w, "Failed to parse traces", http.StatusBadRequest)
			return
		}
		for _, rs := range traces.ResourceSpans {
			for _, ss := range rs.ScopeSpans {
				for _, span := range ss.Spans {
					spanCh <- span
				}
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", s.URL)
	t.Setenv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf")
	t.Setenv("OTEL_SERVICE_NAME", "chatbridge")
	t.Setenv("OTEL_BSP_SCHEDULE_DELAY", "100")
	return &OTLPCollector{s: s, spanCh: spanCh}
}

// URL is the base URL of the collector.
func (o *OTLPCollector) URL() string {
	return o.s.URL
}

// TakeSpan returns a single span or nil if none were recorded in time.
func (o *OTLPCollector) TakeSpan() *tracev1.Span {
	select {
	case span := <-o.spanCh:
		return span
	case <-time.After(otlpTimeout):
		return nil
	}
}
