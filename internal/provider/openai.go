// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tidwall/sjson"

	"github.com/chatbridge/chatbridge/internal/backendauth"
	"github.com/chatbridge/chatbridge/internal/translator"
)

// DefaultOpenAIBaseURL is the base URL of the OpenAI API.
const DefaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI relays chat completion requests to an OpenAI compatible API.
type OpenAI struct {
	client  *http.Client
	chatURL string
	auth    backendauth.Handler
	logger  *slog.Logger
}

// NewOpenAI returns a client of the API at baseURL. A nil client uses
// DefaultHTTPClient.
func NewOpenAI(logger *slog.Logger, client *http.Client, baseURL string, auth backendauth.Handler) *OpenAI {
	if client == nil {
		client = DefaultHTTPClient
	}
	if baseURL == "" {
		baseURL = DefaultOpenAIBaseURL
	}
	return &OpenAI{
		client:  client,
		chatURL: strings.TrimRight(baseURL, "/") + "/chat/completions",
		auth:    auth,
		logger:  logger,
	}
}

// ChatCompletionStream sends the chat completion request body with streaming and
// usage reporting forced on, and returns the SSE response body. Any failure is
// returned as a *translator.ConnectionError. The caller must close the body.
func (o *OpenAI) ChatCompletionStream(ctx context.Context, body []byte) (io.ReadCloser, error) {
	body, err := forceStreaming(body)
	if err != nil {
		return nil, &translator.SerializationError{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.chatURL, bytes.NewReader(body))
	if err != nil {
		return nil, &translator.ConnectionError{Err: fmt.Errorf("cannot create request: %w", err)}
	}
	req.Header.Set(contentTypeHeaderName, jsonContentType)
	req.Header.Set(acceptHeaderName, sseContentType)
	if err = o.auth.Do(ctx, req, body); err != nil {
		return nil, &translator.ConnectionError{Err: err}
	}

	o.logger.Debug("sending chat completion request", slog.String("url", o.chatURL), slog.Int("body_size", len(body)))
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, &translator.ConnectionError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
		return nil, &translator.ConnectionError{Err: fmt.Errorf("OpenAI API error: %d: %s",
			resp.StatusCode, strings.TrimSpace(string(raw)))}
	}
	return resp.Body, nil
}

// forceStreaming sets stream and stream_options.include_usage to true, keeping
// every other field of body untouched.
func forceStreaming(body []byte) ([]byte, error) {
	body, err := sjson.SetBytes(body, "stream", true)
	if err != nil {
		return nil, fmt.Errorf("failed to set stream: %w", err)
	}
	body, err = sjson.SetBytes(body, "stream_options.include_usage", true)
	if err != nil {
		return nil, fmt.Errorf("failed to set stream_options.include_usage: %w", err)
	}
	return body, nil
}
