// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"context"
	"errors"
	"io"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

// ChatCompletionStream converts the events of one Bedrock ConverseStream response
// into OpenAI chat completion chunks. It is not safe for concurrent use.
type ChatCompletionStream struct {
	id      string
	created int64
	model   string
	onUsage UsageCallback

	// toolCalls maps a Bedrock content block index to its tool call ordinal.
	toolCalls    map[int]int64
	nextToolCall int64
}

// NewChatCompletionStream returns a stream translator for a response to model.
// onUsage may be nil.
func NewChatCompletionStream(model string, onUsage UsageCallback) *ChatCompletionStream {
	return &ChatCompletionStream{
		id:        "chatcmpl-" + uuid.NewString(),
		created:   time.Now().Unix(),
		model:     model,
		onUsage:   onUsage,
		toolCalls: make(map[int]int64),
	}
}

// ID returns the id shared by every chunk of the stream.
func (s *ChatCompletionStream) ID() string { return s.id }

// Convert returns the chunk of a single event. Every event produces exactly one
// chunk with exactly one choice.
func (s *ChatCompletionStream) Convert(event *awsbedrock.ConverseStreamEvent) *openai.ChatCompletionResponseChunk {
	chunk := s.newChunk()
	choice := &chunk.Choices[0]
	switch {
	case event.MessageStart != nil:
		if event.MessageStart.Role == awsbedrock.ConversationRoleAssistant {
			empty := ""
			choice.Delta = &openai.ChatCompletionResponseChunkChoiceDelta{
				Role:    openai.ChatMessageRoleAssistant,
				Content: &empty,
			}
		} else {
			choice.Delta = nil
		}
	case event.ContentBlockStart != nil:
		if start := event.ContentBlockStart.Start.ToolUse; start != nil {
			ordinal := s.nextToolCall
			s.nextToolCall++
			s.toolCalls[event.ContentBlockStart.ContentBlockIndex] = ordinal
			choice.Delta.ToolCalls = []openai.ChatCompletionToolCallDelta{toolCallStartDelta(ordinal, start)}
		}
	case event.ContentBlockDelta != nil:
		delta := &event.ContentBlockDelta.Delta
		switch {
		case delta.Text != nil:
			text := *delta.Text
			choice.Delta.Content = &text
		case delta.ToolUse != nil:
			ordinal := s.toolCallOrdinal(event.ContentBlockDelta.ContentBlockIndex)
			choice.Delta.ToolCalls = []openai.ChatCompletionToolCallDelta{toolCallArgumentsDelta(ordinal, delta.ToolUse)}
		}
	case event.MessageStop != nil:
		reason := finishReason(event.MessageStop.StopReason)
		choice.FinishReason = &reason
	case event.Metadata != nil:
		if u := event.Metadata.Usage; u != nil {
			usage := openai.Usage{
				PromptTokens:     u.InputTokens,
				CompletionTokens: u.OutputTokens,
				TotalTokens:      u.TotalTokens,
			}
			if u.CacheReadInputTokens != nil {
				usage.PromptTokensDetails = &openai.PromptTokensDetails{CachedTokens: *u.CacheReadInputTokens}
			}
			chunk.Usage = &usage
			if s.onUsage != nil {
				s.onUsage(usage)
			}
		}
	}
	return chunk
}

// toolCallOrdinal falls back to the most recently started tool call when the block
// index was never announced by a start event.
func (s *ChatCompletionStream) toolCallOrdinal(contentBlockIndex int) int64 {
	if ordinal, ok := s.toolCalls[contentBlockIndex]; ok {
		return ordinal
	}
	return max(s.nextToolCall-1, 0)
}

func (s *ChatCompletionStream) newChunk() *openai.ChatCompletionResponseChunk {
	return &openai.ChatCompletionResponseChunk{
		ID:      s.id,
		Object:  openai.ChatCompletionResponseChunkObject,
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChatCompletionResponseChunkChoice{{
			Index: 0,
			Delta: &openai.ChatCompletionResponseChunkChoiceDelta{},
		}},
	}
}

// finishReason maps every Bedrock stop reason onto an OpenAI finish reason.
func finishReason(reason awsbedrock.StopReason) openai.FinishReason {
	switch reason {
	case awsbedrock.StopReasonToolUse:
		return openai.FinishReasonToolCalls
	case awsbedrock.StopReasonMaxTokens:
		return openai.FinishReasonLength
	default:
		return openai.FinishReasonStop
	}
}

// Translate reads src until it is exhausted and yields one event per Bedrock event
// followed by the [DONE] sentinel. A receive or encoding failure yields a single
// error event and [DONE], and nothing is read after it. Iteration stops without further reads once ctx is done or the
// consumer stops.
func (s *ChatCompletionStream) Translate(ctx context.Context, src EventSource) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			event, err := src.Recv(ctx)
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				yield(DoneEvent())
				return
			}
			if err != nil {
				var streamErr *StreamReceiveError
				if !errors.As(err, &streamErr) {
					err = &StreamReceiveError{Err: err}
				}
				if yield(ErrorEvent(err)) {
					yield(DoneEvent())
				}
				return
			}

			e, err := chunkEvent(s.Convert(event))
			if err != nil {
				if yield(ErrorEvent(err)) {
					yield(DoneEvent())
				}
				return
			}
			if !yield(e) {
				return
			}
		}
	}
}

// TranslateStream is a shorthand for NewChatCompletionStream(model, onUsage).Translate(ctx, src).
func TranslateStream(ctx context.Context, model string, src EventSource, onUsage UsageCallback) iter.Seq[Event] {
	return NewChatCompletionStream(model, onUsage).Translate(ctx, src)
}
