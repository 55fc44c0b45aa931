// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openinference

import (
	"encoding/json"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
)

var _ tracing.ChatCompletionRecorder = (*ChatCompletionRecorder)(nil)

// ChatCompletionRecorder implements recorders for OpenInference chat completion spans.
type ChatCompletionRecorder struct {
	traceConfig *TraceConfig
}

// NewChatCompletionRecorderFromEnv creates an api.ChatCompletionRecorder
// from environment variables using the OpenInference configuration specification.
func NewChatCompletionRecorderFromEnv() *ChatCompletionRecorder {
	return NewChatCompletionRecorder(nil)
}

// NewChatCompletionRecorder creates a tracing.ChatCompletionRecorder with the
// given config. A nil config is read from the environment.
func NewChatCompletionRecorder(config *TraceConfig) *ChatCompletionRecorder {
	if config == nil {
		config = NewTraceConfigFromEnv()
	}
	return &ChatCompletionRecorder{traceConfig: config}
}

// startOpts sets trace.SpanKindInternal as that's the span kind used in
// OpenInference.
var startOpts = []trace.SpanStartOption{trace.WithSpanKind(trace.SpanKindInternal)}

// StartParams implements [tracing.ChatCompletionRecorder.StartParams].
func (r *ChatCompletionRecorder) StartParams(*openai.ChatCompletionRequest, []byte) (spanName string, opts []trace.SpanStartOption) {
	return "ChatCompletion", startOpts
}

// RecordRequest implements [tracing.ChatCompletionRecorder.RecordRequest].
func (r *ChatCompletionRecorder) RecordRequest(span trace.Span, req *openai.ChatCompletionRequest, body []byte) {
	span.SetAttributes(buildRequestAttributes(req, string(body), r.traceConfig)...)
}

// RecordResponseChunks implements [tracing.ChatCompletionRecorder.RecordResponseChunks].
func (r *ChatCompletionRecorder) RecordResponseChunks(span trace.Span, chunks []*openai.ChatCompletionResponseChunk) {
	if len(chunks) > 0 {
		span.AddEvent("First Token Stream Event")
	}
	resp := aggregateChunks(chunks)
	span.SetAttributes(buildResponseAttributes(resp, r.traceConfig)...)
	span.SetStatus(codes.Ok, "")
}

// RecordResponseOnError implements [tracing.ChatCompletionRecorder.RecordResponseOnError].
func (r *ChatCompletionRecorder) RecordResponseOnError(span trace.Span, statusCode int, body []byte) {
	RecordResponseError(span, statusCode, body)
}

// llmInvocationParameters is the request without messages and tools, which
// have their own attributes.
type llmInvocationParameters struct {
	openai.ChatCompletionRequest
	Messages []openai.ChatCompletionMessage `json:"messages,omitempty"`
	Tools    []openai.Tool                  `json:"tools,omitempty"`
}

func buildRequestAttributes(req *openai.ChatCompletionRequest, body string, config *TraceConfig) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(SpanKind, SpanKindLLM),
		attribute.String(LLMSystem, LLMSystemOpenAI),
		attribute.String(LLMModelName, req.Model),
	}
	if !config.HideInputs {
		attrs = append(attrs,
			attribute.String(InputValue, body),
			attribute.String(InputMimeType, MimeTypeJSON),
		)
	}
	if !config.HideLLMInvocationParameters {
		if params, err := json.Marshal(llmInvocationParameters{ChatCompletionRequest: *req}); err == nil {
			attrs = append(attrs, attribute.String(LLMInvocationParameters, string(params)))
		}
	}

	if !config.hideInputMessages() {
		for i, msg := range req.Messages {
			attrs = append(attrs, attribute.String(InputMessageAttribute(i, MessageRole), msg.Role))
			if content := messageText(msg.Content); content != "" {
				if config.HideInputText {
					content = RedactedValue
				}
				attrs = append(attrs, attribute.String(InputMessageAttribute(i, MessageContent), content))
			}
			if msg.ToolCallID != "" {
				attrs = append(attrs, attribute.String(InputMessageAttribute(i, MessageToolCallID), msg.ToolCallID))
			}
			for j, call := range msg.ToolCalls {
				attrs = append(attrs,
					attribute.String(InputMessageToolCallAttribute(i, j, ToolCallID), call.ID),
					attribute.String(InputMessageToolCallAttribute(i, j, ToolCallFunctionName), call.Function.Name),
					attribute.String(InputMessageToolCallAttribute(i, j, ToolCallFunctionArguments), call.Function.Arguments),
				)
			}
		}
	}

	for i, tool := range req.Tools {
		if toolJSON, err := json.Marshal(tool); err == nil {
			attrs = append(attrs, attribute.String(ToolAttribute(i), string(toolJSON)))
		}
	}
	return attrs
}

// messageText joins the text blocks of structured content.
func messageText(c *openai.Contents) string {
	if c == nil {
		return ""
	}
	if c.Kind == openai.ContentsKindText {
		return c.Text
	}
	var texts []string
	for _, b := range c.Blocks {
		if b.Type == openai.ContentBlockTypeText && b.Text != "" {
			texts = append(texts, b.Text)
		}
	}
	return strings.Join(texts, " ")
}

// streamedResponse is a whole streamed response folded into a single message.
type streamedResponse struct {
	ID      string           `json:"id,omitempty"`
	Model   string           `json:"model,omitempty"`
	Choices []streamedChoice `json:"choices"`
	Usage   *openai.Usage    `json:"usage,omitempty"`
}

type streamedChoice struct {
	Index        int64                `json:"index"`
	Message      streamedMessage      `json:"message"`
	FinishReason *openai.FinishReason `json:"finish_reason,omitempty"`
}

type streamedMessage struct {
	Role      string            `json:"role,omitempty"`
	Content   string            `json:"content,omitempty"`
	ToolCalls []openai.ToolCall `json:"tool_calls,omitempty"`
}

// aggregateChunks folds the deltas of the first choice, the only one the gateway produces.
func aggregateChunks(chunks []*openai.ChatCompletionResponseChunk) *streamedResponse {
	resp := &streamedResponse{}
	choice := streamedChoice{}
	var content strings.Builder
	var toolCalls []openai.ToolCall
	toolCallIndex := map[int64]int{}
	for _, chunk := range chunks {
		if chunk == nil {
			continue
		}
		if resp.ID == "" {
			resp.ID = chunk.ID
		}
		if chunk.Model != "" {
			resp.Model = chunk.Model
		}
		if chunk.Usage != nil {
			resp.Usage = chunk.Usage
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		c := chunk.Choices[0]
		if c.FinishReason != nil {
			choice.FinishReason = c.FinishReason
		}
		if c.Delta == nil {
			continue
		}
		if c.Delta.Role != "" {
			choice.Message.Role = c.Delta.Role
		}
		if c.Delta.Content != nil {
			content.WriteString(*c.Delta.Content)
		}
		for _, d := range c.Delta.ToolCalls {
			i, ok := toolCallIndex[d.Index]
			if !ok {
				i = len(toolCalls)
				toolCallIndex[d.Index] = i
				toolCalls = append(toolCalls, openai.ToolCall{Type: openai.ToolTypeFunction})
			}
			if d.ID != "" {
				toolCalls[i].ID = d.ID
			}
			if d.Function.Name != "" {
				toolCalls[i].Function.Name = d.Function.Name
			}
			toolCalls[i].Function.Arguments += d.Function.Arguments
		}
	}
	choice.Message.Content = content.String()
	choice.Message.ToolCalls = toolCalls
	resp.Choices = []streamedChoice{choice}
	return resp
}

func buildResponseAttributes(resp *streamedResponse, config *TraceConfig) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if resp.Model != "" {
		attrs = append(attrs, attribute.String(LLMModelName, resp.Model))
	}
	if !config.HideOutputs {
		if out, err := json.Marshal(resp); err == nil {
			attrs = append(attrs,
				attribute.String(OutputValue, string(out)),
				attribute.String(OutputMimeType, MimeTypeJSON),
			)
		}
	}

	if !config.hideOutputMessages() {
		for i, choice := range resp.Choices {
			attrs = append(attrs, attribute.String(OutputMessageAttribute(i, MessageRole), choice.Message.Role))
			if content := choice.Message.Content; content != "" {
				if config.HideOutputText {
					content = RedactedValue
				}
				attrs = append(attrs, attribute.String(OutputMessageAttribute(i, MessageContent), content))
			}
			for j, call := range choice.Message.ToolCalls {
				attrs = append(attrs,
					attribute.String(OutputMessageToolCallAttribute(i, j, ToolCallID), call.ID),
					attribute.String(OutputMessageToolCallAttribute(i, j, ToolCallFunctionName), call.Function.Name),
					attribute.String(OutputMessageToolCallAttribute(i, j, ToolCallFunctionArguments), call.Function.Arguments),
				)
			}
		}
	}

	if u := resp.Usage; u != nil {
		attrs = append(attrs,
			attribute.Int(LLMTokenCountPrompt, u.PromptTokens),
			attribute.Int(LLMTokenCountCompletion, u.CompletionTokens),
			attribute.Int(LLMTokenCountTotal, u.TotalTokens),
		)
	}
	return attrs
}
