// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"

	"github.com/chatbridge/chatbridge/internal/testing/testotel"
)

func newTestChatCompletion(t *testing.T) (*chatCompletion, *metric.ManualReader) {
	t.Helper()
	mr := metric.NewManualReader()
	meter := metric.NewMeterProvider(metric.WithReader(mr)).Meter("test")
	return NewChatCompletionFactory(meter)().(*chatCompletion), mr
}

func TestNewChatCompletionFactory(t *testing.T) {
	mr := metric.NewManualReader()
	factory := NewChatCompletionFactory(metric.NewMeterProvider(metric.WithReader(mr)).Meter("test"))

	a, b := factory().(*chatCompletion), factory().(*chatCompletion)
	require.NotSame(t, a, b)
	require.Same(t, a.metrics, b.metrics)
	require.Equal(t, "unknown", a.model)
	require.Equal(t, "unknown", a.backend)
	require.False(t, a.firstTokenSent)
}

func TestStartRequest(t *testing.T) {
	pm, _ := newTestChatCompletion(t)
	pm.firstTokenSent = true
	pm.totalOutputTokens = 3

	before := time.Now()
	pm.StartRequest()
	after := time.Now()

	assert.False(t, pm.firstTokenSent)
	assert.Zero(t, pm.totalOutputTokens)
	assert.GreaterOrEqual(t, pm.requestStart, before)
	assert.LessOrEqual(t, pm.requestStart, after)
}

func TestSetBackend(t *testing.T) {
	pm, _ := newTestChatCompletion(t)
	for in, exp := range map[string]string{"openai": "openai", "bedrock": "aws.bedrock", "custom": "custom"} {
		pm.SetBackend(in)
		require.Equal(t, exp, pm.backend)
	}
}

func TestRecordTokenUsage(t *testing.T) {
	pm, mr := newTestChatCompletion(t)
	attrs := []attribute.KeyValue{
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String(genaiSystemOpenAI),
		attribute.Key(genaiAttributeRequestModel).String("test-model"),
	}
	inputAttrs := attribute.NewSet(append(attrs, attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeInput))...)
	outputAttrs := attribute.NewSet(append(attrs, attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeOutput))...)

	pm.SetModel("test-model")
	pm.SetBackend("openai")
	pm.RecordTokenUsage(t.Context(), 10, 5)

	count, sum := testotel.GetHistogramValues(t, mr, genaiMetricClientTokenUsage, inputAttrs)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 10.0, sum)

	count, sum = testotel.GetHistogramValues(t, mr, genaiMetricClientTokenUsage, outputAttrs)
	assert.Equal(t, uint64(1), count)
	assert.Equal(t, 5.0, sum)
	assert.Equal(t, uint32(5), pm.totalOutputTokens)
}

func TestRecordTokenLatency(t *testing.T) {
	pm, mr := newTestChatCompletion(t)
	attrs := attribute.NewSet(
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String(genAISystemAWSBedrock),
		attribute.Key(genaiAttributeRequestModel).String("test-model"),
	)

	pm.StartRequest()
	pm.SetModel("test-model")
	pm.SetBackend("bedrock")

	time.Sleep(10 * time.Millisecond)
	pm.RecordTokenLatency(t.Context(), 0, false)
	assert.True(t, pm.firstTokenSent)
	count, sum := testotel.GetHistogramValues(t, mr, genaiMetricServerTimeToFirstToken, attrs)
	assert.Equal(t, uint64(1), count)
	assert.Greater(t, sum, 0.0)
	assert.Positive(t, pm.GetTimeToFirstTokenMs())

	// Nothing is recorded until the end of the stream.
	time.Sleep(10 * time.Millisecond)
	pm.RecordTokenLatency(t.Context(), 3, false)
	testotel.RequireNoMetric(t, mr, genaiMetricServerTimePerOutputToken)

	pm.RecordTokenLatency(t.Context(), 5, true)
	count, sum = testotel.GetHistogramValues(t, mr, genaiMetricServerTimePerOutputToken, attrs)
	assert.Equal(t, uint64(1), count)
	assert.Greater(t, sum, 0.0)
	assert.Equal(t, uint32(5), pm.totalOutputTokens)
}

func TestRecordTokenLatency_singleToken(t *testing.T) {
	pm, mr := newTestChatCompletion(t)
	pm.StartRequest()
	pm.RecordTokenLatency(t.Context(), 1, false)
	pm.RecordTokenLatency(t.Context(), 1, true)
	testotel.RequireNoMetric(t, mr, genaiMetricServerTimePerOutputToken)
	assert.Zero(t, pm.GetInterTokenLatencyMs())
}

func TestRecordRequestCompletion(t *testing.T) {
	pm, mr := newTestChatCompletion(t)
	attrs := []attribute.KeyValue{
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String("custom"),
		attribute.Key(genaiAttributeRequestModel).String("test-model"),
	}
	attrsSuccess := attribute.NewSet(attrs...)
	attrsFailure := attribute.NewSet(append(attrs, attribute.Key(genaiAttributeErrorType).String("rate_limit"))...)

	pm.StartRequest()
	pm.SetModel("test-model")
	pm.SetBackend("custom")

	time.Sleep(10 * time.Millisecond)
	pm.RecordRequestCompletion(t.Context(), "")
	count, sum := testotel.GetHistogramValues(t, mr, genaiMetricServerRequestDuration, attrsSuccess)
	assert.Equal(t, uint64(1), count)
	assert.Greater(t, sum, 0.0)

	pm.RecordRequestCompletion(t.Context(), "rate_limit")
	pm.RecordRequestCompletion(t.Context(), "rate_limit")
	count, sum = testotel.GetHistogramValues(t, mr, genaiMetricServerRequestDuration, attrsFailure)
	assert.Equal(t, uint64(2), count)
	assert.Greater(t, sum, 0.0)
}

func TestRecordRequestCost(t *testing.T) {
	pm, mr := newTestChatCompletion(t)
	pm.SetModel("test-model")
	pm.SetBackend("bedrock")
	pm.RecordRequestCost(t.Context(), 7)
	pm.RecordRequestCost(t.Context(), 3)

	attrs := attribute.NewSet(
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String(genAISystemAWSBedrock),
		attribute.Key(genaiAttributeRequestModel).String("test-model"),
	)
	assert.Equal(t, 10.0, testotel.GetCounterValue(t, mr, requestCostMetric, attrs))
}

func TestGetTimeToFirstTokenMsAndGetInterTokenLatencyMs(t *testing.T) {
	c := chatCompletion{timeToFirstToken: time.Second, interTokenLatency: 2 * time.Second}
	assert.Equal(t, 1000.0, c.GetTimeToFirstTokenMs())
	assert.Equal(t, 2000.0, c.GetInterTokenLatencyMs())
}
