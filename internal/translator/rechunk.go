// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

const rechunkReadSize = 32 * 1024

// Rechunker re-frames the SSE stream of an OpenAI compatible provider into the
// chunks served by the gateway. It is not safe for concurrent use.
type Rechunker struct {
	id      string
	created int64
	model   string
	onUsage UsageCallback

	// buf holds text not yet terminated by a newline.
	buf []byte
	// partial holds the leading bytes of a rune split across two reads.
	partial []byte
}

// NewRechunker returns a Rechunker that fills absent chunk fields with a fresh id,
// the current time and model. onUsage may be nil.
func NewRechunker(model string, onUsage UsageCallback) *Rechunker {
	return &Rechunker{
		id:      "chatcmpl-" + uuid.NewString(),
		created: time.Now().Unix(),
		model:   model,
		onUsage: onUsage,
	}
}

// Rechunk reads body until EOF and yields one event per data line. A line that
// cannot be parsed yields a non-nil error together with a zero Event, and reading
// continues if the consumer keeps iterating. A read failure yields a
// *StreamReceiveError and ends the sequence.
func (r *Rechunker) Rechunk(ctx context.Context, body io.Reader) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		readBuf := make([]byte, rechunkReadSize)
		for {
			if ctx.Err() != nil {
				return
			}
			n, err := body.Read(readBuf)
			if n > 0 {
				r.write(readBuf[:n])
				for {
					line, ok := r.nextLine()
					if !ok {
						break
					}
					if !r.yieldLine(line, yield) {
						return
					}
				}
			}
			if errors.Is(err, io.EOF) {
				// The provider may omit the final newline.
				if len(r.buf) > 0 {
					line := r.buf
					r.buf = nil
					r.yieldLine(line, yield)
				}
				return
			}
			if err != nil {
				if ctx.Err() == nil {
					yield(Event{}, &StreamReceiveError{Err: err})
				}
				return
			}
		}
	}
}

// RechunkPassthrough is a shorthand for NewRechunker(model, onUsage).Rechunk(ctx, body).
func RechunkPassthrough(ctx context.Context, model string, body io.Reader, onUsage UsageCallback) iter.Seq2[Event, error] {
	return NewRechunker(model, onUsage).Rechunk(ctx, body)
}

// write appends data to the line buffer. Data that is not valid UTF-8 is dropped,
// except for an incomplete rune at its end which is kept for the next write.
func (r *Rechunker) write(data []byte) {
	if len(r.partial) > 0 {
		data = append(r.partial, data...)
		r.partial = nil
	}
	cut := len(data) - incompleteRuneSuffix(data)
	if !utf8.Valid(data[:cut]) {
		return
	}
	r.buf = append(r.buf, data[:cut]...)
	if cut < len(data) {
		r.partial = append([]byte(nil), data[cut:]...)
	}
}

// incompleteRuneSuffix returns the length of a truncated multi-byte rune at the end
// of b, or zero.
func incompleteRuneSuffix(b []byte) int {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		if tail := b[len(b)-i:]; utf8.RuneStart(tail[0]) {
			if utf8.FullRune(tail) {
				return 0
			}
			return i
		}
	}
	return 0
}

// nextLine pops the next newline terminated line off the buffer.
func (r *Rechunker) nextLine() ([]byte, bool) {
	i := bytes.IndexByte(r.buf, '\n')
	if i < 0 {
		return nil, false
	}
	line := r.buf[:i]
	r.buf = r.buf[i+1:]
	return line, true
}

// yieldLine reports whether iteration should continue.
func (r *Rechunker) yieldLine(line []byte, yield func(Event, error) bool) bool {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return true
	}
	data, ok := bytes.CutPrefix(line, []byte("data:"))
	if !ok {
		// Comments, event names and retry hints carry no chunk.
		return true
	}
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, sseDoneMessage) {
		return yield(DoneEvent(), nil)
	}
	chunk, err := r.parseChunk(data)
	if err != nil {
		return yield(Event{}, err)
	}
	e, err := chunkEvent(chunk)
	if err != nil {
		return yield(Event{}, err)
	}
	return yield(e, nil)
}

func (r *Rechunker) parseChunk(data []byte) (*openai.ChatCompletionResponseChunk, error) {
	if errMsg := gjson.GetBytes(data, "error"); errMsg.Exists() {
		msg := errMsg.Get("message").String()
		if msg == "" {
			msg = errMsg.Raw
		}
		return nil, &StreamReceiveError{Err: errors.New(msg)}
	}
	var chunk openai.ChatCompletionResponseChunk
	if err := json.Unmarshal(data, &chunk); err != nil {
		return nil, &StreamReceiveError{Err: fmt.Errorf("failed to parse upstream chunk: %w", err)}
	}
	if chunk.ID == "" {
		chunk.ID = r.id
	}
	if chunk.Created == 0 {
		chunk.Created = r.created
	}
	if chunk.Model == "" {
		chunk.Model = r.model
	}
	chunk.Object = openai.ChatCompletionResponseChunkObject
	if len(chunk.Choices) == 0 {
		chunk.Choices = []openai.ChatCompletionResponseChunkChoice{{
			Delta: &openai.ChatCompletionResponseChunkChoiceDelta{},
		}}
	}
	if chunk.Usage != nil && r.onUsage != nil {
		r.onUsage(*chunk.Usage)
	}
	return &chunk, nil
}
