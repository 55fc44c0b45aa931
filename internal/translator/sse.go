// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

var (
	sseDataPrefix  = []byte("data: ")
	sseDoneMessage = []byte("[DONE]")
)

// jsonMarshal is swapped in tests to exercise serialization failures.
var jsonMarshal = json.Marshal

// Event is a Server-Sent Event carrying a single data payload: either a JSON
// encoded chunk, an error envelope or the terminal [DONE] sentinel.
type Event struct {
	Data []byte
	// Chunk is the decoded form of Data, nil for the sentinel and error events.
	Chunk *openai.ChatCompletionResponseChunk
}

// DoneEvent returns the terminal [DONE] event.
func DoneEvent() Event {
	return Event{Data: sseDoneMessage}
}

// IsDone returns true for the terminal [DONE] event.
func (e Event) IsDone() bool {
	return bytes.Equal(e.Data, sseDoneMessage)
}

// Bytes returns the event framed as "data: <payload>\n\n".
func (e Event) Bytes() []byte {
	buf := make([]byte, 0, len(sseDataPrefix)+len(e.Data)+2)
	buf = append(buf, sseDataPrefix...)
	buf = append(buf, e.Data...)
	return append(buf, '\n', '\n')
}

// WriteTo implements [io.WriterTo].
func (e Event) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(e.Bytes())
	return int64(n), err
}

// chunkEvent serializes chunk into an Event.
func chunkEvent(chunk *openai.ChatCompletionResponseChunk) (Event, error) {
	data, err := jsonMarshal(chunk)
	if err != nil {
		return Event{}, &SerializationError{Err: fmt.Errorf("failed to marshal stream chunk: %w", err)}
	}
	return Event{Data: data, Chunk: chunk}, nil
}

// ErrorEvent returns the event reporting err once the stream has started.
func ErrorEvent(err error) Event {
	return classificationEvent(ClassifyError(err))
}

func classificationEvent(c Classification) Event {
	data, err := jsonMarshal(c.OpenAIError())
	if err != nil {
		data = fallbackErrorJSON(c)
	}
	return Event{Data: data}
}

// fallbackErrorJSON builds the error envelope by hand so that an error can be
// delivered even when JSON encoding fails.
func fallbackErrorJSON(c Classification) []byte {
	var buf []byte
	buf = append(buf, `{"error":{"message":`...)
	buf = appendJSONString(buf, c.Message)
	buf = append(buf, `,"type":`...)
	buf = appendJSONString(buf, c.ErrorType())
	buf = append(buf, `,"param":null,"code":`...)
	buf = appendJSONString(buf, c.Code)
	return append(buf, `}}`...)
}

func appendJSONString(buf []byte, s string) []byte {
	buf = append(buf, '"')
	for _, r := range s {
		switch {
		case r == '"' || r == '\\':
			buf = append(buf, '\\', byte(r))
		case r < 0x20:
			buf = fmt.Appendf(buf, `\u%04x`, r)
		default:
			buf = utf8.AppendRune(buf, r)
		}
	}
	return append(buf, '"')
}
