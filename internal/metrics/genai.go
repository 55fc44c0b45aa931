// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package metrics

import "go.opentelemetry.io/otel/metric"

const (
	// Metric names, attributes and values according to the Semantic Conventions for Generative AI Metrics.
	// See: https://opentelemetry.io/docs/specs/semconv/gen-ai/gen-ai-metrics/

	genaiMetricClientTokenUsage         = "gen_ai.client.token.usage" // #nosec G101: Potential hardcoded credentials
	genaiMetricServerRequestDuration    = "gen_ai.server.request.duration"
	genaiMetricServerTimeToFirstToken   = "gen_ai.server.time_to_first_token"   // #nosec G101: Potential hardcoded credentials
	genaiMetricServerTimePerOutputToken = "gen_ai.server.time_per_output_token" // #nosec G101: Potential hardcoded credentials

	genaiAttributeOperationName = "gen_ai.operation.name"
	genaiAttributeSystemName    = "gen_ai.system.name"
	genaiAttributeRequestModel  = "gen_ai.request.model"
	genaiAttributeTokenType     = "gen_ai.token.type" // #nosec G101: Potential hardcoded credentials
	genaiAttributeErrorType     = "error.type"

	genaiOperationChat    = "chat"
	genaiSystemOpenAI     = "openai"
	genAISystemAWSBedrock = "aws.bedrock"
	genaiTokenTypeInput   = "input"
	genaiTokenTypeOutput  = "output"

	// requestCostMetric is the sum of the costs computed by the configured cost expression.
	requestCostMetric = "chatbridge.request.cost"
)

// genAI holds the instruments of a chat completion.
type genAI struct {
	tokenUsage         metric.Float64Histogram
	requestLatency     metric.Float64Histogram // from the decoded request to the end of the stream
	firstTokenLatency  metric.Float64Histogram
	outputTokenLatency metric.Float64Histogram
	requestCost        metric.Float64Counter // not part of the conventions
}

var (
	tokenUsageHistogram = histogramSpec{
		name:        genaiMetricClientTokenUsage,
		description: "Number of tokens processed.",
		unit:        "{token}",
		buckets:     []float64{1, 4, 16, 64, 256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864},
	}
	requestDurationHistogram = histogramSpec{
		name:        genaiMetricServerRequestDuration,
		description: "Time spent streaming the response of a chat completion.",
		unit:        "s",
		buckets:     []float64{0.01, 0.02, 0.04, 0.08, 0.16, 0.32, 0.64, 1.28, 2.56, 5.12, 10.24, 20.48, 40.96, 81.92},
	}
	timeToFirstTokenHistogram = histogramSpec{
		name:        genaiMetricServerTimeToFirstToken,
		description: "Time until the first chunk with output is sent to the client.",
		unit:        "s",
		buckets:     []float64{0.001, 0.005, 0.01, 0.02, 0.04, 0.06, 0.08, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0},
	}
	timePerOutputTokenHistogram = histogramSpec{
		name:        genaiMetricServerTimePerOutputToken,
		description: "Average time between output tokens after the first one.",
		unit:        "s",
		buckets:     []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.4, 0.5, 0.75, 1.0, 2.5},
	}
)

func newGenAI(meter metric.Meter) *genAI {
	return &genAI{
		tokenUsage:         tokenUsageHistogram.register(meter),
		requestLatency:     requestDurationHistogram.register(meter),
		firstTokenLatency:  timeToFirstTokenHistogram.register(meter),
		outputTokenLatency: timePerOutputTokenHistogram.register(meter),
		requestCost: must(meter.Float64Counter(requestCostMetric,
			metric.WithDescription("Cost of the requests computed from their token usage."),
			metric.WithUnit("{cost}"),
		)),
	}
}
