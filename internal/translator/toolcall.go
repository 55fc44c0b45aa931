// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"strings"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

// defaultToolInputSchema is used for functions declared without parameters.
var defaultToolInputSchema = awsbedrock.ObjectDocument(map[string]awsbedrock.Document{
	"type":       awsbedrock.StringDocument("object"),
	"properties": awsbedrock.ObjectDocument(nil),
})

// toolArgumentsDocument parses the arguments of a tool call. Arguments produced by
// a model are not guaranteed to be valid JSON, so anything unparsable becomes an
// empty object instead of failing the request.
func toolArgumentsDocument(arguments string) awsbedrock.Document {
	if strings.TrimSpace(arguments) == "" {
		return awsbedrock.ObjectDocument(nil)
	}
	doc, err := awsbedrock.ParseDocument([]byte(arguments))
	if err != nil {
		return awsbedrock.ObjectDocument(nil)
	}
	return doc
}

func toolUseBlock(call *openai.ToolCall) *awsbedrock.ToolUseBlock {
	return &awsbedrock.ToolUseBlock{
		ToolUseID: call.ID,
		Name:      call.Function.Name,
		Input:     toolArgumentsDocument(call.Function.Arguments),
	}
}

// toolResultBlock converts a tool message into a tool result tied to its call.
func toolResultBlock(i int, msg *openai.ChatCompletionMessage) (*awsbedrock.ContentBlock, error) {
	if msg.ToolCallID == "" {
		return nil, translationErrorf("messages[%d]: tool message is missing tool_call_id", i)
	}
	if msg.Content == nil {
		return nil, translationErrorf("messages[%d]: tool message is missing content", i)
	}
	text := contentsText(msg.Content)
	return &awsbedrock.ContentBlock{ToolResult: &awsbedrock.ToolResultBlock{
		ToolUseID: msg.ToolCallID,
		Content:   []*awsbedrock.ToolResultContentBlock{{Text: &text}},
	}}, nil
}

// contentsText flattens contents into one string, joining text blocks with a space.
func contentsText(contents *openai.Contents) string {
	if contents.Kind == openai.ContentsKindText {
		return contents.Text
	}
	parts := make([]string, 0, len(contents.Blocks))
	for _, b := range contents.Blocks {
		if b.Type == openai.ContentBlockTypeText {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, " ")
}

func toolSpecification(i int, tool *openai.Tool) (*awsbedrock.ToolSpecification, error) {
	if tool.Type != "" && tool.Type != openai.ToolTypeFunction {
		return nil, translationErrorf("tools[%d]: unsupported tool type %q", i, tool.Type)
	}
	if tool.Function.Name == "" {
		return nil, translationErrorf("tools[%d]: function name is required", i)
	}
	spec := &awsbedrock.ToolSpecification{
		Name:        tool.Function.Name,
		InputSchema: awsbedrock.ToolInputSchema{JSON: defaultToolInputSchema},
	}
	if tool.Function.Description != "" {
		description := tool.Function.Description
		spec.Description = &description
	}
	if len(tool.Function.Parameters) > 0 && string(tool.Function.Parameters) != "null" {
		schema, err := awsbedrock.ParseDocument(tool.Function.Parameters)
		if err != nil {
			return nil, translationErrorf("tools[%d]: invalid parameters: %v", i, err)
		}
		spec.InputSchema.JSON = schema
	}
	return spec, nil
}

// toolCallStartDelta is the first fragment of a streamed tool call.
func toolCallStartDelta(index int64, start *awsbedrock.ToolUseBlockStart) openai.ChatCompletionToolCallDelta {
	return openai.ChatCompletionToolCallDelta{
		Index: index,
		ID:    start.ToolUseID,
		Type:  openai.ToolTypeFunction,
		Function: openai.ToolCallFunction{
			Name:      start.Name,
			Arguments: "",
		},
	}
}

// toolCallArgumentsDelta carries a fragment of the JSON arguments of a tool call.
func toolCallArgumentsDelta(index int64, delta *awsbedrock.ToolUseBlockDelta) openai.ChatCompletionToolCallDelta {
	return openai.ChatCompletionToolCallDelta{
		Index:    index,
		Function: openai.ToolCallFunction{Arguments: delta.Input},
	}
}
