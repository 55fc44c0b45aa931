// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package testotel

import (
	"sync"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
)

var _ tracing.ChatCompletionSpan = (*MockSpan)(nil)

// MockSpan records the calls of a handler on its span. The handler may still be
// ending the span after the client read the last chunk, so access is guarded.
type MockSpan struct {
	mu          sync.Mutex
	chunks      []*openai.ChatCompletionResponseChunk
	ends        int
	errorStatus int
	errorBody   string
}

func (s *MockSpan) RecordResponseChunk(resp *openai.ChatCompletionResponseChunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, resp)
}

func (s *MockSpan) EndSpanOnError(statusCode int, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
	s.errorStatus = statusCode
	s.errorBody = string(body)
}

func (s *MockSpan) EndSpan() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ends++
}

// Chunks returns the recorded response chunks.
func (s *MockSpan) Chunks() []*openai.ChatCompletionResponseChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*openai.ChatCompletionResponseChunk(nil), s.chunks...)
}

// Ends returns how many times the span was ended, successfully or not.
func (s *MockSpan) Ends() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ends
}

// Error returns the status and body of EndSpanOnError. The status is zero when
// the span did not end on an error.
func (s *MockSpan) Error() (status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errorStatus, s.errorBody
}
