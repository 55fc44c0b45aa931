// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

// TranslateRequest converts an OpenAI chat completion request into the input of
// the Bedrock ConverseStream API. It returns a *TranslationError when the request
// cannot be expressed for Bedrock.
//
// System messages become system blocks. User and tool messages become user
// messages, with consecutive tool messages merged into a single user message
// carrying one tool result per call. Assistant messages become assistant messages
// with their text followed by one tool use block per tool call.
func TranslateRequest(req *openai.ChatCompletionRequest) (*awsbedrock.ConverseInput, error) {
	if req.Model == "" {
		return nil, translationErrorf("model is required")
	}
	input := &awsbedrock.ConverseInput{
		ModelID:  req.Model,
		Messages: make([]*awsbedrock.Message, 0, len(req.Messages)),
	}

	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case openai.ChatMessageRoleSystem:
			input.System = append(input.System, systemBlocks(msg.Content)...)
		case openai.ChatMessageRoleUser:
			m, err := userMessage(i, msg)
			if err != nil {
				return nil, err
			}
			input.Messages = append(input.Messages, m)
		case openai.ChatMessageRoleAssistant:
			if m := assistantMessage(msg); m != nil {
				input.Messages = append(input.Messages, m)
			}
		case openai.ChatMessageRoleTool:
			block, err := toolResultBlock(i, msg)
			if err != nil {
				return nil, err
			}
			// Bedrock expects every result of one assistant turn in the same user message.
			if i > 0 && req.Messages[i-1].Role == openai.ChatMessageRoleTool {
				last := input.Messages[len(input.Messages)-1]
				last.Content = append(last.Content, block)
			} else {
				input.Messages = append(input.Messages, &awsbedrock.Message{
					Role:    awsbedrock.ConversationRoleUser,
					Content: []*awsbedrock.ContentBlock{block},
				})
			}
		default:
			return nil, translationErrorf("messages[%d]: unsupported role %q", i, msg.Role)
		}
	}

	input.InferenceConfig = inferenceConfiguration(req)

	toolConfig, err := toolConfiguration(req.Tools, req.ToolChoice)
	if err != nil {
		return nil, err
	}
	input.ToolConfig = toolConfig
	return input, nil
}

// systemBlocks returns one block for string contents and one block per text block
// otherwise.
func systemBlocks(contents *openai.Contents) []*awsbedrock.SystemContentBlock {
	if contents == nil {
		return nil
	}
	if contents.Kind == openai.ContentsKindText {
		return []*awsbedrock.SystemContentBlock{{Text: contents.Text}}
	}
	var blocks []*awsbedrock.SystemContentBlock
	for _, b := range contents.Blocks {
		if b.Type == openai.ContentBlockTypeText {
			blocks = append(blocks, &awsbedrock.SystemContentBlock{Text: b.Text})
		}
	}
	return blocks
}

// textBlocks returns the non-empty text of contents as Bedrock text blocks.
func textBlocks(contents *openai.Contents) []*awsbedrock.ContentBlock {
	if contents.IsEmpty() {
		return nil
	}
	if contents.Kind == openai.ContentsKindText {
		text := contents.Text
		return []*awsbedrock.ContentBlock{{Text: &text}}
	}
	var blocks []*awsbedrock.ContentBlock
	for _, b := range contents.Blocks {
		if b.Type != openai.ContentBlockTypeText || b.Text == "" {
			continue
		}
		text := b.Text
		blocks = append(blocks, &awsbedrock.ContentBlock{Text: &text})
	}
	return blocks
}

func userMessage(i int, msg *openai.ChatCompletionMessage) (*awsbedrock.Message, error) {
	blocks := textBlocks(msg.Content)
	if len(blocks) == 0 {
		return nil, translationErrorf("messages[%d]: user message has no text content", i)
	}
	return &awsbedrock.Message{Role: awsbedrock.ConversationRoleUser, Content: blocks}, nil
}

// assistantMessage returns nil for an assistant message with neither text nor tool
// calls since Bedrock rejects empty messages.
func assistantMessage(msg *openai.ChatCompletionMessage) *awsbedrock.Message {
	blocks := textBlocks(msg.Content)
	for i := range msg.ToolCalls {
		blocks = append(blocks, &awsbedrock.ContentBlock{ToolUse: toolUseBlock(&msg.ToolCalls[i])})
	}
	if len(blocks) == 0 {
		return nil
	}
	return &awsbedrock.Message{Role: awsbedrock.ConversationRoleAssistant, Content: blocks}
}

func inferenceConfiguration(req *openai.ChatCompletionRequest) *awsbedrock.InferenceConfiguration {
	cfg := &awsbedrock.InferenceConfiguration{
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		MaxTokens:     req.MaxTokens,
		StopSequences: req.Stop,
	}
	if req.MaxCompletionTokens != nil {
		cfg.MaxTokens = req.MaxCompletionTokens
	}
	if cfg.Temperature == nil && cfg.TopP == nil && cfg.MaxTokens == nil && len(cfg.StopSequences) == 0 {
		return nil
	}
	return cfg
}

// toolConfiguration returns nil when no tools are declared.
func toolConfiguration(tools []openai.Tool, choice *openai.ToolChoice) (*awsbedrock.ToolConfiguration, error) {
	if len(tools) == 0 {
		return nil, nil
	}
	cfg := &awsbedrock.ToolConfiguration{Tools: make([]*awsbedrock.Tool, 0, len(tools))}
	for i := range tools {
		spec, err := toolSpecification(i, &tools[i])
		if err != nil {
			return nil, err
		}
		cfg.Tools = append(cfg.Tools, &awsbedrock.Tool{ToolSpec: spec})
	}

	switch {
	case choice == nil:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Auto: &awsbedrock.AutoToolChoice{}}
	case choice.Kind == openai.ToolChoiceKindFunction:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Tool: &awsbedrock.SpecificToolChoice{Name: choice.Function}}
	case choice.Mode == openai.ToolChoiceModeNone:
		// Tools stay declared but no choice is forced.
	case choice.Mode == openai.ToolChoiceModeRequired:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Any: &awsbedrock.AnyToolChoice{}}
	default:
		cfg.ToolChoice = &awsbedrock.ToolChoice{Auto: &awsbedrock.AutoToolChoice{}}
	}
	return cfg, nil
}
