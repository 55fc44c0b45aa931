// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestContents_UnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name   string
		in     string
		exp    Contents
		expErr string
	}{
		{
			name: "string",
			in:   `"hello"`,
			exp:  Contents{Kind: ContentsKindText, Text: "hello"},
		},
		{
			name: "string with escaped slash",
			in:   `"/path\/to\/file"`,
			exp:  Contents{Kind: ContentsKindText, Text: "/path/to/file"},
		},
		{
			name: "leading whitespace",
			in:   " \t\n\"hi\"",
			exp:  Contents{Kind: ContentsKindText, Text: "hi"},
		},
		{
			name: "blocks",
			in:   `[{"type":"text","text":"a"},{"type":"image_url"}]`,
			exp: Contents{Kind: ContentsKindBlocks, Blocks: []ContentBlock{
				{Type: "text", Text: "a"},
				{Type: "image_url"},
			}},
		},
		{
			name: "empty blocks",
			in:   `[]`,
			exp:  Contents{Kind: ContentsKindBlocks, Blocks: []ContentBlock{}},
		},
		{
			name:   "number",
			in:     `1`,
			expErr: "invalid content type (must be string or array)",
		},
		{
			name:   "truncated",
			in:     `   `,
			expErr: "truncated content data",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var c Contents
			err := c.UnmarshalJSON([]byte(tc.in))
			if tc.expErr != "" {
				require.EqualError(t, err, tc.expErr)
				return
			}
			require.NoError(t, err)
			if d := cmp.Diff(tc.exp, c); d != "" {
				t.Errorf("Contents mismatch (-want +got):\n%s", d)
			}
		})
	}
}

func TestContents_IsEmpty(t *testing.T) {
	var nilContents *Contents
	require.True(t, nilContents.IsEmpty())
	require.True(t, TextContents("").IsEmpty())
	require.True(t, BlockContents().IsEmpty())
	require.False(t, TextContents("x").IsEmpty())
	require.False(t, BlockContents(ContentBlock{Type: ContentBlockTypeText}).IsEmpty())
}

func TestContents_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(TextContents("hi"))
	require.NoError(t, err)
	require.JSONEq(t, `"hi"`, string(b))

	b, err = json.Marshal(&Contents{Kind: ContentsKindBlocks})
	require.NoError(t, err)
	require.JSONEq(t, `[]`, string(b))

	b, err = json.Marshal(BlockContents(ContentBlock{Type: "text", Text: "a"}))
	require.NoError(t, err)
	require.JSONEq(t, `[{"type":"text","text":"a"}]`, string(b))
}

func TestToolChoice_UnmarshalJSON(t *testing.T) {
	for _, tc := range []struct {
		name   string
		in     string
		exp    ToolChoice
		expErr string
	}{
		{name: "auto", in: `"auto"`, exp: ToolChoice{Kind: ToolChoiceKindMode, Mode: ToolChoiceModeAuto}},
		{name: "none", in: `"none"`, exp: ToolChoice{Kind: ToolChoiceKindMode, Mode: ToolChoiceModeNone}},
		{name: "unknown mode kept", in: `"whatever"`, exp: ToolChoice{Kind: ToolChoiceKindMode, Mode: "whatever"}},
		{
			name: "named function",
			in:   `{"type":"function","function":{"name":"get_weather"}}`,
			exp:  ToolChoice{Kind: ToolChoiceKindFunction, Function: "get_weather"},
		},
		{name: "object without name", in: `{"type":"function"}`, expErr: "tool_choice object is missing function.name"},
		{name: "array", in: `[]`, expErr: "invalid tool_choice type (must be string or object)"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var c ToolChoice
			err := json.Unmarshal([]byte(tc.in), &c)
			if tc.expErr != "" {
				require.ErrorContains(t, err, tc.expErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.exp, c)

			// Encoding gives back an equivalent document.
			b, err := json.Marshal(c)
			require.NoError(t, err)
			require.JSONEq(t, tc.in, string(b))
		})
	}
}

func TestStopSequences_UnmarshalJSON(t *testing.T) {
	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":"END"}`), &req))
	require.Equal(t, StopSequences{"END"}, req.Stop)

	req = ChatCompletionRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":["a","b"]}`), &req))
	require.Equal(t, StopSequences{"a", "b"}, req.Stop)

	req = ChatCompletionRequest{}
	require.NoError(t, json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":null}`), &req))
	require.Nil(t, req.Stop)

	err := json.Unmarshal([]byte(`{"model":"m","messages":[],"stop":1}`), &req)
	require.ErrorContains(t, err, "invalid stop type")
}

func TestChatCompletionRequest_Unmarshal(t *testing.T) {
	const body = `{
  "model": "anthropic.claude-3-haiku",
  "stream": true,
  "messages": [
    {"role": "system", "content": "be brief"},
    {"role": "user", "content": [{"type": "text", "text": "weather?"}]},
    {"role": "assistant", "content": null, "tool_calls": [
      {"id": "call_1", "type": "function", "function": {"name": "get_weather", "arguments": "{\"city\":\"Paris\"}"}}
    ]},
    {"role": "tool", "tool_call_id": "call_1", "content": "sunny"}
  ],
  "tools": [{"type": "function", "function": {"name": "get_weather", "parameters": {"type": "object"}}}],
  "tool_choice": "required"
}`
	var req ChatCompletionRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	require.Equal(t, "anthropic.claude-3-haiku", req.Model)
	require.NotNil(t, req.Stream)
	require.True(t, *req.Stream)
	require.Len(t, req.Messages, 4)
	require.Equal(t, TextContents("be brief"), req.Messages[0].Content)
	require.Equal(t, BlockContents(ContentBlock{Type: "text", Text: "weather?"}), req.Messages[1].Content)
	require.Nil(t, req.Messages[2].Content)
	require.Equal(t, "call_1", req.Messages[2].ToolCalls[0].ID)
	require.JSONEq(t, `{"city":"Paris"}`, req.Messages[2].ToolCalls[0].Function.Arguments)
	require.Equal(t, "call_1", req.Messages[3].ToolCallID)
	require.JSONEq(t, `{"type":"object"}`, string(req.Tools[0].Function.Parameters))
	require.Equal(t, &ToolChoice{Kind: ToolChoiceKindMode, Mode: ToolChoiceModeRequired}, req.ToolChoice)
}

func TestChatCompletionResponseChunk_Marshal(t *testing.T) {
	empty := ""
	stop := FinishReasonStop
	for _, tc := range []struct {
		name  string
		chunk ChatCompletionResponseChunk
		exp   string
	}{
		{
			name: "role",
			chunk: ChatCompletionResponseChunk{
				ID: "chatcmpl-1", Object: ChatCompletionResponseChunkObject, Created: 10, Model: "m",
				Choices: []ChatCompletionResponseChunkChoice{{Delta: &ChatCompletionResponseChunkChoiceDelta{Role: "assistant", Content: &empty}}},
			},
			exp: `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":10,"model":"m","choices":[{"index":0,"delta":{"content":"","role":"assistant"},"finish_reason":null}]}`,
		},
		{
			name: "tool call start",
			chunk: ChatCompletionResponseChunk{
				ID: "chatcmpl-1", Object: ChatCompletionResponseChunkObject, Created: 10, Model: "m",
				Choices: []ChatCompletionResponseChunkChoice{{Delta: &ChatCompletionResponseChunkChoiceDelta{
					ToolCalls: []ChatCompletionToolCallDelta{{ID: "t1", Type: ToolTypeFunction, Function: ToolCallFunction{Name: "f"}}},
				}}},
			},
			exp: `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":10,"model":"m","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"t1","type":"function","function":{"name":"f","arguments":""}}]},"finish_reason":null}]}`,
		},
		{
			name: "finish and usage",
			chunk: ChatCompletionResponseChunk{
				ID: "chatcmpl-1", Object: ChatCompletionResponseChunkObject, Created: 10, Model: "m",
				Choices: []ChatCompletionResponseChunkChoice{{Delta: &ChatCompletionResponseChunkChoiceDelta{}, FinishReason: &stop}},
				Usage:   &Usage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3},
			},
			exp: `{"id":"chatcmpl-1","object":"chat.completion.chunk","created":10,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.chunk)
			require.NoError(t, err)
			require.JSONEq(t, tc.exp, string(b))
		})
	}
}
