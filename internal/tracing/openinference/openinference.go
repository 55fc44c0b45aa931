// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package openinference provides OpenInference semantic conventions for
// OpenTelemetry tracing.
package openinference

import "fmt"

// OpenInference Span Kind constants.
//
// Reference: https://github.com/Arize-ai/openinference/blob/main/spec/semantic_conventions.md
const (
	// SpanKind identifies the type of operation (required for all OpenInference spans).
	SpanKind = "openinference.span.kind"

	// SpanKindLLM indicates a Large Language Model operation.
	SpanKindLLM = "LLM"
)

// LLM Operation constants.
//
// Reference: https://github.com/Arize-ai/openinference/blob/main/spec/semantic_conventions.md#llm-spans
const (
	// LLMSystem identifies the AI system/product (e.g., "openai").
	LLMSystem = "llm.system"

	// LLMProvider identifies the hosting provider (e.g., "aws").
	LLMProvider = "llm.provider"

	// LLMModelName specifies the model name.
	LLMModelName = "llm.model_name"

	// LLMInvocationParameters contains the invocation parameters as JSON string.
	LLMInvocationParameters = "llm.invocation_parameters"
)

// LLMSystem Values.
const (
	// LLMSystemOpenAI is used for every request, as clients speak the OpenAI API.
	LLMSystemOpenAI = "openai"
)

// Input/Output constants.
//
// Reference: https://github.com/Arize-ai/openinference/blob/main/spec/semantic_conventions.md#inputoutput
const (
	InputValue     = "input.value"
	InputMimeType  = "input.mime_type"
	OutputValue    = "output.value"
	OutputMimeType = "output.mime_type"
	MimeTypeJSON   = "application/json"
)

// LLM Message constants. Messages are indexed starting from 0.
const (
	// LLMInputMessages prefix for input message attributes.
	// Usage: llm.input_messages.{index}.message.role
	LLMInputMessages = "llm.input_messages"

	// LLMOutputMessages prefix for output message attributes.
	LLMOutputMessages = "llm.output_messages"

	MessageRole       = "message.role"
	MessageContent    = "message.content"
	MessageToolCallID = "message.tool_call_id"
)

// Token Count constants.
const (
	LLMTokenCountPrompt     = "llm.token_count.prompt"     // #nosec G101
	LLMTokenCountCompletion = "llm.token_count.completion" // #nosec G101
	LLMTokenCountTotal      = "llm.token_count.total"      // #nosec G101
)

// Tool Call constants.
//
// Reference: Python OpenAI instrumentation (not in core spec).
const (
	// LLMTools contains the list of available tools as JSON.
	// Format: llm.tools.{index}.tool.json_schema.
	LLMTools = "llm.tools"

	// MessageToolCalls prefix for tool calls in messages.
	// Format: message.tool_calls.{index}.tool_call.{attribute}.
	MessageToolCalls = "message.tool_calls"

	ToolCallID                = "tool_call.id"
	ToolCallFunctionName      = "tool_call.function.name"
	ToolCallFunctionArguments = "tool_call.function.arguments"
)

// InputMessageAttribute creates an attribute key for input messages.
func InputMessageAttribute(index int, suffix string) string {
	return fmt.Sprintf("%s.%d.%s", LLMInputMessages, index, suffix)
}

// InputMessageToolCallAttribute creates an attribute key for a tool call of an input message.
func InputMessageToolCallAttribute(messageIndex, toolCallIndex int, suffix string) string {
	return fmt.Sprintf("%s.%d.%s.%d.%s", LLMInputMessages, messageIndex, MessageToolCalls, toolCallIndex, suffix)
}

// OutputMessageAttribute creates an attribute key for output messages.
func OutputMessageAttribute(index int, suffix string) string {
	return fmt.Sprintf("%s.%d.%s", LLMOutputMessages, index, suffix)
}

// OutputMessageToolCallAttribute creates an attribute key for a tool call.
func OutputMessageToolCallAttribute(messageIndex, toolCallIndex int, suffix string) string {
	return fmt.Sprintf("%s.%d.%s.%d.%s", LLMOutputMessages, messageIndex, MessageToolCalls, toolCallIndex, suffix)
}

// ToolAttribute creates the attribute key of the JSON schema of a tool.
func ToolAttribute(index int) string {
	return fmt.Sprintf("%s.%d.tool.json_schema", LLMTools, index)
}
