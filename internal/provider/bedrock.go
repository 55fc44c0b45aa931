// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/backendauth"
	"github.com/chatbridge/chatbridge/internal/translator"
)

const (
	awsErrorTypeHeaderName = "X-Amzn-Errortype"

	eventStreamMessageTypeHeader   = ":message-type"
	eventStreamEventTypeHeader     = ":event-type"
	eventStreamExceptionTypeHeader = ":exception-type"
	eventStreamErrorCodeHeader     = ":error-code"
	eventStreamErrorMessageHeader  = ":error-message"
)

// BedrockEndpoint returns the Bedrock runtime endpoint of region.
func BedrockEndpoint(region string) string {
	return fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
}

// Bedrock is a client of the Bedrock ConverseStream API.
type Bedrock struct {
	client   *http.Client
	endpoint string
	auth     backendauth.Handler
	logger   *slog.Logger
}

// NewBedrock returns a Bedrock client sending requests to endpoint, authenticated
// by auth. A nil client uses DefaultHTTPClient.
func NewBedrock(logger *slog.Logger, client *http.Client, endpoint string, auth backendauth.Handler) *Bedrock {
	if client == nil {
		client = DefaultHTTPClient
	}
	return &Bedrock{
		client:   client,
		endpoint: strings.TrimRight(endpoint, "/"),
		auth:     auth,
		logger:   logger,
	}
}

// ConverseStream starts a streamed conversation. Any failure before the first event
// is returned as a *translator.ConnectionError. The caller must close the returned
// stream.
func (b *Bedrock) ConverseStream(ctx context.Context, input *awsbedrock.ConverseInput) (*EventStream, error) {
	body, err := json.Marshal(input)
	if err != nil {
		return nil, &translator.SerializationError{Err: fmt.Errorf("failed to marshal converse input: %w", err)}
	}
	path := fmt.Sprintf("/model/%s/converse-stream", url.PathEscape(input.ModelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, &translator.ConnectionError{Err: fmt.Errorf("cannot create request: %w", err)}
	}
	req.Header.Set(contentTypeHeaderName, jsonContentType)
	req.Header.Set(acceptHeaderName, eventStreamType)
	if err = b.auth.Do(ctx, req, body); err != nil {
		return nil, &translator.ConnectionError{Err: err}
	}

	b.logger.Debug("sending converse stream request", slog.String("model", input.ModelID), slog.Int("body_size", len(body)))
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &translator.ConnectionError{Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &translator.ConnectionError{Err: bedrockResponseError(resp)}
	}
	return &EventStream{body: resp.Body, dec: eventstream.NewDecoder()}, nil
}

// bedrockResponseError formats a non 2xx response as "<error type>: <message>".
func bedrockResponseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))
	message := strings.TrimSpace(string(raw))
	var exception awsbedrock.BedrockException
	if err := json.Unmarshal(raw, &exception); err == nil && exception.Message != "" {
		message = exception.Message
	}
	errType := resp.Header.Get(awsErrorTypeHeaderName)
	// The header may carry a namespace after the name, e.g. "ThrottlingException:http://...".
	errType, _, _ = strings.Cut(errType, ":")
	if errType == "" {
		errType = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("%s: %s", errType, message)
}

// EventStream reads the binary event stream of a ConverseStream response. It
// implements translator.EventSource and is not safe for concurrent use.
type EventStream struct {
	body       io.ReadCloser
	dec        *eventstream.Decoder
	payloadBuf []byte
}

// Recv implements translator.EventSource. Exception frames and malformed frames are
// returned as *translator.StreamReceiveError.
func (s *EventStream) Recv(ctx context.Context) (*awsbedrock.ConverseStreamEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	msg, err := s.dec.Decode(s.body, s.payloadBuf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &translator.StreamReceiveError{Err: fmt.Errorf("failed to decode event stream frame: %w", err)}
	}
	s.payloadBuf = msg.Payload[:0]

	switch messageType := headerString(msg.Headers, eventStreamMessageTypeHeader); messageType {
	case "", "event":
		event, err := awsbedrock.DecodeStreamEvent(headerString(msg.Headers, eventStreamEventTypeHeader), msg.Payload)
		if err != nil {
			return nil, &translator.StreamReceiveError{Err: err}
		}
		return event, nil
	case "exception":
		var exception awsbedrock.BedrockException
		_ = json.Unmarshal(msg.Payload, &exception)
		return nil, &translator.StreamReceiveError{Err: fmt.Errorf("%s: %s",
			headerString(msg.Headers, eventStreamExceptionTypeHeader), exception.Message)}
	case "error":
		return nil, &translator.StreamReceiveError{Err: fmt.Errorf("%s: %s",
			headerString(msg.Headers, eventStreamErrorCodeHeader), headerString(msg.Headers, eventStreamErrorMessageHeader))}
	default:
		return nil, &translator.StreamReceiveError{Err: fmt.Errorf("unknown event stream message type %q", messageType)}
	}
}

// Close releases the response body.
func (s *EventStream) Close() error { return s.body.Close() }

func headerString(headers eventstream.Headers, name string) string {
	v := headers.Get(name)
	if v == nil {
		return ""
	}
	return v.String()
}
