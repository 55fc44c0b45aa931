// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
)

// streamedChunksAttribute counts the chunks sent before a stream failed.
const streamedChunksAttribute = "chatbridge.response.streamed_chunks"

var _ tracing.ChatCompletionSpan = (*chatCompletionSpan)(nil)

// chatCompletionSpan buffers the streamed chunks and records them as one
// response when the stream ends. Only the first end has an effect.
type chatCompletionSpan struct {
	span     trace.Span
	recorder tracing.ChatCompletionRecorder
	chunks   []*openai.ChatCompletionResponseChunk
	ended    bool
}

func (s *chatCompletionSpan) RecordResponseChunk(resp *openai.ChatCompletionResponseChunk) {
	if !s.ended {
		s.chunks = append(s.chunks, resp)
	}
}

func (s *chatCompletionSpan) EndSpan() {
	if s.ended {
		return
	}
	s.ended = true
	s.recorder.RecordResponseChunks(s.span, s.chunks)
	s.span.End()
}

func (s *chatCompletionSpan) EndSpanOnError(statusCode int, body []byte) {
	if s.ended {
		return
	}
	s.ended = true
	if len(s.chunks) > 0 {
		s.span.SetAttributes(attribute.Int(streamedChunksAttribute, len(s.chunks)))
	}
	s.recorder.RecordResponseOnError(s.span, statusCode, body)
	s.span.End()
}
