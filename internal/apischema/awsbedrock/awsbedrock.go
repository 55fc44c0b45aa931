// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package awsbedrock contains the wire types of the AWS Bedrock Converse API.
//
// https://docs.aws.amazon.com/bedrock/latest/APIReference/API_runtime_ConverseStream.html
package awsbedrock

import (
	"encoding/json"
	"fmt"
)

// Conversation roles.
const (
	ConversationRoleUser      = "user"
	ConversationRoleAssistant = "assistant"
)

// StopReason is the reason the model stopped generating.
type StopReason string

// Stop reasons returned in MessageStopEvent.
const (
	StopReasonEndTurn             StopReason = "end_turn"
	StopReasonToolUse             StopReason = "tool_use"
	StopReasonMaxTokens           StopReason = "max_tokens"
	StopReasonStopSequence        StopReason = "stop_sequence"
	StopReasonGuardrailIntervened StopReason = "guardrail_intervened"
	StopReasonContentFiltered     StopReason = "content_filtered"
)

// ConverseInput is the request body of the ConverseStream API.
type ConverseInput struct {
	// ModelID is sent in the request path, not in the body.
	ModelID string `json:"-"`

	Messages        []*Message              `json:"messages"`
	System          []*SystemContentBlock   `json:"system,omitempty"`
	InferenceConfig *InferenceConfiguration `json:"inferenceConfig,omitempty"`
	ToolConfig      *ToolConfiguration      `json:"toolConfig,omitempty"`
}

// InferenceConfiguration holds the sampling parameters.
type InferenceConfiguration struct {
	MaxTokens     *int64   `json:"maxTokens,omitempty"`
	StopSequences []string `json:"stopSequences,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	TopP          *float64 `json:"topP,omitempty"`
}

// SystemContentBlock is a system prompt block.
type SystemContentBlock struct {
	Text string `json:"text"`
}

// Message is one turn of the conversation.
type Message struct {
	Role    string          `json:"role"`
	Content []*ContentBlock `json:"content"`
}

// ContentBlock is a block of a Message. Exactly one field is set.
type ContentBlock struct {
	Text       *string          `json:"text,omitempty"`
	ToolUse    *ToolUseBlock    `json:"toolUse,omitempty"`
	ToolResult *ToolResultBlock `json:"toolResult,omitempty"`
}

// ToolUseBlock is a tool invocation requested by the model.
type ToolUseBlock struct {
	ToolUseID string   `json:"toolUseId"`
	Name      string   `json:"name"`
	Input     Document `json:"input"`
}

// Tool result statuses.
const (
	ToolResultStatusSuccess = "success"
	ToolResultStatusError   = "error"
)

// ToolResultBlock carries the result of a previous tool invocation.
type ToolResultBlock struct {
	ToolUseID string                    `json:"toolUseId"`
	Content   []*ToolResultContentBlock `json:"content"`
	Status    string                    `json:"status,omitempty"`
}

// ToolResultContentBlock is a block of a ToolResultBlock.
type ToolResultContentBlock struct {
	Text *string `json:"text,omitempty"`
}

// ToolConfiguration declares the tools the model may use.
type ToolConfiguration struct {
	Tools      []*Tool     `json:"tools"`
	ToolChoice *ToolChoice `json:"toolChoice,omitempty"`
}

// Tool wraps a ToolSpecification.
type Tool struct {
	ToolSpec *ToolSpecification `json:"toolSpec"`
}

// ToolSpecification describes a tool.
type ToolSpecification struct {
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	InputSchema ToolInputSchema `json:"inputSchema"`
}

// ToolInputSchema is the JSON schema of a tool input.
type ToolInputSchema struct {
	JSON Document `json:"json"`
}

// ToolChoice forces tool usage. Exactly one field is set.
type ToolChoice struct {
	Auto *AutoToolChoice     `json:"auto,omitempty"`
	Any  *AnyToolChoice      `json:"any,omitempty"`
	Tool *SpecificToolChoice `json:"tool,omitempty"`
}

// AutoToolChoice lets the model decide whether to use a tool.
type AutoToolChoice struct{}

// AnyToolChoice requires the model to use at least one tool.
type AnyToolChoice struct{}

// SpecificToolChoice requires the model to use the named tool.
type SpecificToolChoice struct {
	Name string `json:"name"`
}

// StreamEventType is the value of the ":event-type" header of a ConverseStream frame.
type StreamEventType string

// ConverseStream event types.
const (
	StreamEventMessageStart      StreamEventType = "messageStart"
	StreamEventContentBlockStart StreamEventType = "contentBlockStart"
	StreamEventContentBlockDelta StreamEventType = "contentBlockDelta"
	StreamEventContentBlockStop  StreamEventType = "contentBlockStop"
	StreamEventMessageStop       StreamEventType = "messageStop"
	StreamEventMetadata          StreamEventType = "metadata"
)

// ConverseStreamEvent is one event of the ConverseStream output. Type tells which
// payload field is set. Events of unknown type carry no payload.
type ConverseStreamEvent struct {
	Type StreamEventType

	MessageStart      *MessageStartEvent
	ContentBlockStart *ContentBlockStartEvent
	ContentBlockDelta *ContentBlockDeltaEvent
	ContentBlockStop  *ContentBlockStopEvent
	MessageStop       *MessageStopEvent
	Metadata          *MetadataEvent
}

// MessageStartEvent starts a message.
type MessageStartEvent struct {
	Role string `json:"role"`
}

// ContentBlockStartEvent starts a content block. Text blocks have no start payload.
type ContentBlockStartEvent struct {
	ContentBlockIndex int               `json:"contentBlockIndex"`
	Start             ContentBlockStart `json:"start"`
}

// ContentBlockStart is the start payload of a content block.
type ContentBlockStart struct {
	ToolUse *ToolUseBlockStart `json:"toolUse,omitempty"`
}

// ToolUseBlockStart identifies the tool being invoked.
type ToolUseBlockStart struct {
	ToolUseID string `json:"toolUseId"`
	Name      string `json:"name"`
}

// ContentBlockDeltaEvent carries an increment of a content block.
type ContentBlockDeltaEvent struct {
	ContentBlockIndex int               `json:"contentBlockIndex"`
	Delta             ContentBlockDelta `json:"delta"`
}

// ContentBlockDelta is the increment of a content block.
type ContentBlockDelta struct {
	Text    *string            `json:"text,omitempty"`
	ToolUse *ToolUseBlockDelta `json:"toolUse,omitempty"`
}

// ToolUseBlockDelta is a fragment of the JSON input of a tool invocation.
type ToolUseBlockDelta struct {
	Input string `json:"input"`
}

// ContentBlockStopEvent ends a content block.
type ContentBlockStopEvent struct {
	ContentBlockIndex int `json:"contentBlockIndex"`
}

// MessageStopEvent ends a message.
type MessageStopEvent struct {
	StopReason StopReason `json:"stopReason"`
}

// MetadataEvent is sent after MessageStopEvent.
type MetadataEvent struct {
	Usage   *TokenUsage            `json:"usage,omitempty"`
	Metrics *ConverseStreamMetrics `json:"metrics,omitempty"`
}

// TokenUsage is the token accounting reported by Bedrock.
type TokenUsage struct {
	InputTokens          int  `json:"inputTokens"`
	OutputTokens         int  `json:"outputTokens"`
	TotalTokens          int  `json:"totalTokens"`
	CacheReadInputTokens *int `json:"cacheReadInputTokens,omitempty"`
}

// ConverseStreamMetrics holds the latency reported by Bedrock.
type ConverseStreamMetrics struct {
	LatencyMs int64 `json:"latencyMs"`
}

// BedrockException is the body of an error response or an exception frame.
type BedrockException struct {
	Message string `json:"message"`
}

// DecodeStreamEvent decodes the payload of a ConverseStream frame given the value of
// its ":event-type" header.
func DecodeStreamEvent(eventType string, payload []byte) (*ConverseStreamEvent, error) {
	event := &ConverseStreamEvent{Type: StreamEventType(eventType)}
	var target any
	switch event.Type {
	case StreamEventMessageStart:
		event.MessageStart = &MessageStartEvent{}
		target = event.MessageStart
	case StreamEventContentBlockStart:
		event.ContentBlockStart = &ContentBlockStartEvent{}
		target = event.ContentBlockStart
	case StreamEventContentBlockDelta:
		event.ContentBlockDelta = &ContentBlockDeltaEvent{}
		target = event.ContentBlockDelta
	case StreamEventContentBlockStop:
		event.ContentBlockStop = &ContentBlockStopEvent{}
		target = event.ContentBlockStop
	case StreamEventMessageStop:
		event.MessageStop = &MessageStopEvent{}
		target = event.MessageStop
	case StreamEventMetadata:
		event.Metadata = &MetadataEvent{}
		target = event.Metadata
	default:
		return event, nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, fmt.Errorf("failed to decode %s event: %w", eventType, err)
	}
	return event, nil
}
