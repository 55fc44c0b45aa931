// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package translator converts OpenAI chat completion requests into AWS Bedrock
// ConverseStream inputs, and converts streamed responses (either Bedrock events or
// the SSE stream of an OpenAI compatible provider) into OpenAI chat completion
// chunks framed as Server-Sent Events.
//
// Everything in this package is request scoped and performs no I/O other than
// reading from the event source or body handed to it.
package translator

import (
	"context"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

// UsageCallback receives the token usage reported by the backend. It is invoked
// synchronously from the goroutine consuming the stream, once per usage report.
type UsageCallback func(usage openai.Usage)

// EventSource yields the events of a Bedrock ConverseStream response in order.
type EventSource interface {
	// Recv returns the next event. It returns io.EOF once the stream is complete.
	Recv(ctx context.Context) (*awsbedrock.ConverseStreamEvent, error)
}
