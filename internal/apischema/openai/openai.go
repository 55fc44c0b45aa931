// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openai contains the subset of the OpenAI Chat Completions API
// schema that the gateway accepts and emits.
//
// https://platform.openai.com/docs/api-reference/chat
package openai

import (
	"encoding/json"
	"fmt"
)

// Chat message roles.
const (
	ChatMessageRoleSystem    = "system"
	ChatMessageRoleUser      = "user"
	ChatMessageRoleAssistant = "assistant"
	ChatMessageRoleTool      = "tool"
)

// ChatCompletionResponseChunkObject is the only valid value of ChatCompletionResponseChunk.Object.
const ChatCompletionResponseChunkObject = "chat.completion.chunk"

// ToolTypeFunction is the only tool type supported by the Chat Completions API.
const ToolTypeFunction = "function"

// ChatCompletionRequest represents a request to /v1/chat/completions.
// https://platform.openai.com/docs/api-reference/chat/create
type ChatCompletionRequest struct {
	// Model is the ID of the model to use.
	Model string `json:"model"`
	// Messages is the conversation so far.
	Messages []ChatCompletionMessage `json:"messages"`

	Temperature         *float64      `json:"temperature,omitempty"`
	TopP                *float64      `json:"top_p,omitempty"`
	MaxTokens           *int64        `json:"max_tokens,omitempty"`
	MaxCompletionTokens *int64        `json:"max_completion_tokens,omitempty"`
	FrequencyPenalty    *float64      `json:"frequency_penalty,omitempty"`
	PresencePenalty     *float64      `json:"presence_penalty,omitempty"`
	Stop                StopSequences `json:"stop,omitempty"`
	// N is accepted but only a single choice is ever produced.
	N    *int64 `json:"n,omitempty"`
	User string `json:"user,omitempty"`

	// Tools is a list of tools the model may call.
	Tools []Tool `json:"tools,omitempty"`
	// ToolChoice controls which (if any) tool is called by the model.
	ToolChoice *ToolChoice `json:"tool_choice,omitempty"`

	// Stream is a pointer so that an absent field can be told apart from an explicit false.
	Stream        *bool          `json:"stream,omitempty"`
	StreamOptions *StreamOptions `json:"stream_options,omitempty"`
}

// StreamOptions represents the options for streaming responses.
type StreamOptions struct {
	// IncludeUsage asks for an additional chunk carrying the token usage of the whole request.
	IncludeUsage bool `json:"include_usage,omitempty"`
}

// ChatCompletionMessage is one message of the conversation.
type ChatCompletionMessage struct {
	Role string `json:"role"`
	// Content is nil when the field is absent or null.
	Content *Contents `json:"content,omitempty"`
	Name    string    `json:"name,omitempty"`
	// ToolCalls is only meaningful for assistant messages.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID is only meaningful for tool messages.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ContentBlock is one part of a structured message content. Only text blocks are
// translated; other types are preserved on decode and ignored downstream.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ContentBlockTypeText is the type of ContentBlock carrying text.
const ContentBlockTypeText = "text"

// Tool describes a tool the model may call.
type Tool struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes a function the model may call.
type FunctionDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Parameters is the JSON schema of the function arguments, kept raw so that
	// integer and float literals can be told apart when converted.
	Parameters json.RawMessage `json:"parameters,omitempty"`
}

// ToolCall is a call to a tool made by the model, as found in assistant messages.
type ToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function ToolCallFunction `json:"function"`
}

// ToolCallFunction is the function part of a ToolCall.
type ToolCallFunction struct {
	Name string `json:"name,omitempty"`
	// Arguments is raw JSON text which may be invalid or incomplete.
	Arguments string `json:"arguments"`
}

// ChatCompletionResponseChunk is one streamed chunk of a chat completion.
// https://platform.openai.com/docs/api-reference/chat/streaming
type ChatCompletionResponseChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	// Choices always holds at least one element when emitted by the gateway.
	Choices           []ChatCompletionResponseChunkChoice `json:"choices"`
	SystemFingerprint string                              `json:"system_fingerprint,omitempty"`
	Usage             *Usage                              `json:"usage,omitempty"`
}

// ChatCompletionResponseChunkChoice is a choice of a ChatCompletionResponseChunk.
type ChatCompletionResponseChunkChoice struct {
	Index        int64                                   `json:"index"`
	Delta        *ChatCompletionResponseChunkChoiceDelta `json:"delta,omitempty"`
	FinishReason *FinishReason                           `json:"finish_reason"`
}

// ChatCompletionResponseChunkChoiceDelta is the incremental message of a choice.
type ChatCompletionResponseChunkChoiceDelta struct {
	// Content is a pointer so that the empty string can still be emitted.
	Content   *string                       `json:"content,omitempty"`
	Role      string                        `json:"role,omitempty"`
	ToolCalls []ChatCompletionToolCallDelta `json:"tool_calls,omitempty"`
}

// ChatCompletionToolCallDelta is a fragment of a tool call. The first fragment of a
// call carries ID, Type and Function.Name; later ones only carry argument text.
type ChatCompletionToolCallDelta struct {
	Index    int64            `json:"index"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

// FinishReason is the reason the model stopped generating tokens.
type FinishReason string

// Finish reasons.
const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonLength    FinishReason = "length"
	FinishReasonToolCalls FinishReason = "tool_calls"
)

// Usage is the token accounting of a request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	// PromptTokensDetails is only set when the backend reports prompt cache reads.
	PromptTokensDetails *PromptTokensDetails `json:"prompt_tokens_details,omitempty"`
}

// PromptTokensDetails breaks down the prompt tokens of a Usage.
type PromptTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// Error is the error envelope returned by the OpenAI API, also used inside SSE
// streams once the response has started.
type Error struct {
	Error ErrorType `json:"error"`
}

// ErrorType is the body of Error.
type ErrorType struct {
	Message string  `json:"message"`
	Type    string  `json:"type"`
	Param   *string `json:"param"`
	Code    *string `json:"code"`
}

// StopSequences is either a single stop string or a list of them on the wire.
type StopSequences []string

// UnmarshalJSON implements [json.Unmarshaler].
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	idx, err := skipLeadingWhitespace("stop", data, 0)
	if err != nil {
		return err
	}
	switch data[idx] {
	case 'n':
		*s = nil
		return nil
	case '"':
		str, err := unquoteOrUnmarshalJSONString("stop", data)
		if err != nil {
			return err
		}
		*s = StopSequences{str}
		return nil
	case '[':
		var strs []string
		if err := json.Unmarshal(data, &strs); err != nil {
			return fmt.Errorf("cannot unmarshal stop as []string: %w", err)
		}
		*s = strs
		return nil
	default:
		return fmt.Errorf("invalid stop type (must be string or array)")
	}
}
