// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openai

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ContentsKind discriminates the variants of Contents.
type ContentsKind int

const (
	// ContentsKindText is a plain string content.
	ContentsKindText ContentsKind = iota
	// ContentsKindBlocks is an ordered list of content blocks.
	ContentsKindBlocks
)

// Contents is the content of a message, either a plain string or a list of
// content blocks.
type Contents struct {
	Kind   ContentsKind
	Text   string
	Blocks []ContentBlock
}

// TextContents returns Contents holding a plain string.
func TextContents(text string) *Contents {
	return &Contents{Kind: ContentsKindText, Text: text}
}

// BlockContents returns Contents holding the given blocks.
func BlockContents(blocks ...ContentBlock) *Contents {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return &Contents{Kind: ContentsKindBlocks, Blocks: blocks}
}

// IsEmpty returns true for nil contents, the empty string and the empty block list.
func (c *Contents) IsEmpty() bool {
	if c == nil {
		return true
	}
	if c.Kind == ContentsKindText {
		return c.Text == ""
	}
	return len(c.Blocks) == 0
}

// UnmarshalJSON implements [json.Unmarshaler].
func (c *Contents) UnmarshalJSON(data []byte) error {
	idx, err := skipLeadingWhitespace("content", data, 0)
	if err != nil {
		return err
	}
	switch data[idx] {
	case '"':
		str, err := unquoteOrUnmarshalJSONString("content", data)
		if err != nil {
			return err
		}
		*c = Contents{Kind: ContentsKindText, Text: str}
		return nil
	case '[':
		var blocks []ContentBlock
		if err := json.Unmarshal(data, &blocks); err != nil {
			return fmt.Errorf("cannot unmarshal content as content blocks: %w", err)
		}
		if blocks == nil {
			blocks = []ContentBlock{}
		}
		*c = Contents{Kind: ContentsKindBlocks, Blocks: blocks}
		return nil
	default:
		return fmt.Errorf("invalid content type (must be string or array)")
	}
}

// MarshalJSON implements [json.Marshaler].
func (c Contents) MarshalJSON() ([]byte, error) {
	if c.Kind == ContentsKindText {
		return json.Marshal(c.Text)
	}
	if c.Blocks == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.Blocks)
}

// ToolChoiceKind discriminates the variants of ToolChoice.
type ToolChoiceKind int

const (
	// ToolChoiceKindMode is a bare mode string such as "auto".
	ToolChoiceKindMode ToolChoiceKind = iota
	// ToolChoiceKindFunction pins a specific function by name.
	ToolChoiceKindFunction
)

// Tool choice modes.
const (
	ToolChoiceModeNone     = "none"
	ToolChoiceModeAuto     = "auto"
	ToolChoiceModeRequired = "required"
)

// ToolChoice is either a mode string or an object naming a function.
type ToolChoice struct {
	Kind ToolChoiceKind
	// Mode is set when Kind is ToolChoiceKindMode. Unknown modes are kept verbatim.
	Mode string
	// Function is the pinned function name when Kind is ToolChoiceKindFunction.
	Function string
}

type namedToolChoice struct {
	Type     string `json:"type"`
	Function struct {
		Name string `json:"name"`
	} `json:"function"`
}

// UnmarshalJSON implements [json.Unmarshaler].
func (t *ToolChoice) UnmarshalJSON(data []byte) error {
	idx, err := skipLeadingWhitespace("tool_choice", data, 0)
	if err != nil {
		return err
	}
	switch data[idx] {
	case '"':
		str, err := unquoteOrUnmarshalJSONString("tool_choice", data)
		if err != nil {
			return err
		}
		*t = ToolChoice{Kind: ToolChoiceKindMode, Mode: str}
		return nil
	case '{':
		var named namedToolChoice
		if err := json.Unmarshal(data, &named); err != nil {
			return fmt.Errorf("cannot unmarshal tool_choice as object: %w", err)
		}
		if named.Function.Name == "" {
			return fmt.Errorf("tool_choice object is missing function.name")
		}
		*t = ToolChoice{Kind: ToolChoiceKindFunction, Function: named.Function.Name}
		return nil
	default:
		return fmt.Errorf("invalid tool_choice type (must be string or object)")
	}
}

// MarshalJSON implements [json.Marshaler].
func (t ToolChoice) MarshalJSON() ([]byte, error) {
	if t.Kind == ToolChoiceKindMode {
		return json.Marshal(t.Mode)
	}
	var named namedToolChoice
	named.Type = ToolTypeFunction
	named.Function.Name = t.Function
	return json.Marshal(named)
}

// skipLeadingWhitespace is unlikely to return anything except zero, but this
// allows us to use strconv.Unquote for the fast path.
func skipLeadingWhitespace(typ string, data []byte, idx int) (int, error) {
	for idx < len(data) && (data[idx] == ' ' || data[idx] == '\t' || data[idx] == '\n' || data[idx] == '\r') {
		idx++
	}
	if idx >= len(data) {
		return 0, fmt.Errorf("truncated %s data", typ)
	}
	return idx, nil
}

func unquoteOrUnmarshalJSONString(typ string, data []byte) (string, error) {
	// Fast-path parse normal quoted string.
	s, err := strconv.Unquote(string(data))
	if err == nil {
		return s, nil
	}

	// strconv.Unquote fails on JSON-only escapes such as `\/`.
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return "", fmt.Errorf("cannot unmarshal %s as string: %w", typ, err)
	}
	return str, nil
}
