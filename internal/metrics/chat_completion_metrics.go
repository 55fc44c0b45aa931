// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ChatCompletionMetricsFactory is a closure that creates a new ChatCompletionMetrics instance.
type ChatCompletionMetricsFactory func() ChatCompletionMetrics

// ChatCompletionMetrics is the interface for the chat completion metrics of a single request.
//
// Implementations are not safe for concurrent use.
type ChatCompletionMetrics interface {
	// StartRequest initializes timing for a new request.
	StartRequest()
	// SetModel sets the model the request. This is usually called after parsing the request body.
	SetModel(model string)
	// SetBackend sets the provider name when the routing decision has been made. It is reported
	// according to https://opentelemetry.io/docs/specs/semconv/attributes-registry/gen-ai/#gen-ai-system
	SetBackend(backend string)

	// RecordTokenUsage records token usage metrics.
	RecordTokenUsage(ctx context.Context, inputTokens, outputTokens uint32)
	// RecordRequestCompletion records latency metrics for the entire request. An empty errorType
	// means the request succeeded.
	RecordRequestCompletion(ctx context.Context, errorType string)
	// RecordTokenLatency records latency metrics for token generation. It is called for every chunk
	// sent to the client with the cumulative number of output tokens known so far.
	RecordTokenLatency(ctx context.Context, tokens uint32, endOfStream bool)
	// RecordRequestCost adds the computed cost of the request.
	RecordRequestCost(ctx context.Context, cost uint64)
	// GetTimeToFirstTokenMs returns the time to first token in milliseconds.
	GetTimeToFirstTokenMs() float64
	// GetInterTokenLatencyMs returns the inter token latency in milliseconds.
	GetInterTokenLatencyMs() float64
}

// chatCompletion is the implementation for the chat completion metrics.
type chatCompletion struct {
	metrics           *genAI
	requestStart      time.Time
	model             string
	backend           string
	firstTokenSent    bool
	timeToFirstToken  time.Duration
	interTokenLatency time.Duration
	totalOutputTokens uint32
}

// NewChatCompletionFactory returns a closure to create a new ChatCompletionMetrics instance.
// The instruments are registered once on the meter and shared by every instance.
func NewChatCompletionFactory(meter metric.Meter) ChatCompletionMetricsFactory {
	m := newGenAI(meter)
	return func() ChatCompletionMetrics {
		return &chatCompletion{metrics: m, model: "unknown", backend: "unknown"}
	}
}

// StartRequest implements [ChatCompletionMetrics.StartRequest].
func (c *chatCompletion) StartRequest() {
	c.requestStart = time.Now()
	c.firstTokenSent = false
	c.totalOutputTokens = 0
}

// SetModel implements [ChatCompletionMetrics.SetModel].
func (c *chatCompletion) SetModel(model string) {
	c.model = model
}

// SetBackend implements [ChatCompletionMetrics.SetBackend].
func (c *chatCompletion) SetBackend(backend string) {
	switch backend {
	case "openai":
		c.backend = genaiSystemOpenAI
	case "bedrock":
		c.backend = genAISystemAWSBedrock
	default:
		c.backend = backend
	}
}

func (c *chatCompletion) attributes() attribute.Set {
	return attribute.NewSet(
		attribute.Key(genaiAttributeOperationName).String(genaiOperationChat),
		attribute.Key(genaiAttributeSystemName).String(c.backend),
		attribute.Key(genaiAttributeRequestModel).String(c.model),
	)
}

// RecordTokenUsage implements [ChatCompletionMetrics.RecordTokenUsage].
func (c *chatCompletion) RecordTokenUsage(ctx context.Context, inputTokens, outputTokens uint32) {
	attrs := c.attributes()
	c.metrics.tokenUsage.Record(ctx, float64(inputTokens),
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeInput)),
	)
	c.metrics.tokenUsage.Record(ctx, float64(outputTokens),
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeTokenType).String(genaiTokenTypeOutput)),
	)
	// The total is not recorded, it would double count. The conventions only define input and output.
	if outputTokens > c.totalOutputTokens {
		c.totalOutputTokens = outputTokens
	}
}

// RecordRequestCompletion implements [ChatCompletionMetrics.RecordRequestCompletion].
func (c *chatCompletion) RecordRequestCompletion(ctx context.Context, errorType string) {
	attrs := c.attributes()
	elapsed := time.Since(c.requestStart).Seconds()
	if errorType == "" {
		// According to the semantic conventions, the error attribute should not be added for successful operations.
		c.metrics.requestLatency.Record(ctx, elapsed, metric.WithAttributeSet(attrs))
		return
	}
	c.metrics.requestLatency.Record(ctx, elapsed,
		metric.WithAttributeSet(attrs),
		metric.WithAttributes(attribute.Key(genaiAttributeErrorType).String(errorType)),
	)
}

// RecordTokenLatency implements [ChatCompletionMetrics.RecordTokenLatency].
func (c *chatCompletion) RecordTokenLatency(ctx context.Context, tokens uint32, endOfStream bool) {
	attrs := c.attributes()
	if !c.firstTokenSent {
		c.firstTokenSent = true
		c.timeToFirstToken = time.Since(c.requestStart)
		c.metrics.firstTokenLatency.Record(ctx, c.timeToFirstToken.Seconds(), metric.WithAttributeSet(attrs))
		return
	}

	if tokens > c.totalOutputTokens {
		c.totalOutputTokens = tokens
	}

	// time_per_output_token = (request_duration - time_to_first_token) / (output_tokens - 1).
	if endOfStream && c.totalOutputTokens > 1 {
		sinceFirstToken := time.Since(c.requestStart) - c.timeToFirstToken
		c.interTokenLatency = sinceFirstToken / time.Duration(c.totalOutputTokens-1)
		c.metrics.outputTokenLatency.Record(ctx, c.interTokenLatency.Seconds(), metric.WithAttributeSet(attrs))
	}
}

// RecordRequestCost implements [ChatCompletionMetrics.RecordRequestCost].
func (c *chatCompletion) RecordRequestCost(ctx context.Context, cost uint64) {
	c.metrics.requestCost.Add(ctx, float64(cost), metric.WithAttributeSet(c.attributes()))
}

// GetTimeToFirstTokenMs implements [ChatCompletionMetrics.GetTimeToFirstTokenMs].
func (c *chatCompletion) GetTimeToFirstTokenMs() float64 {
	return float64(c.timeToFirstToken.Milliseconds())
}

// GetInterTokenLatencyMs implements [ChatCompletionMetrics.GetInterTokenLatencyMs].
func (c *chatCompletion) GetInterTokenLatencyMs() float64 {
	return float64(c.interTokenLatency.Milliseconds())
}
