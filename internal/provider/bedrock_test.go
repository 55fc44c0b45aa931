// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws/protocol/eventstream"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"k8s.io/utils/ptr"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	"github.com/chatbridge/chatbridge/internal/translator"
)

// recordingAuth records the requests it authenticates.
type recordingAuth struct {
	bodies [][]byte
	err    error
}

func (r *recordingAuth) Do(_ context.Context, req *http.Request, body []byte) error {
	r.bodies = append(r.bodies, body)
	req.Header.Set("Authorization", "test")
	return r.err
}

type frame struct {
	messageType string
	eventType   string
	payload     string
	headers     eventstream.Headers
}

func encodeFrames(t *testing.T, frames ...frame) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc := eventstream.NewEncoder()
	for _, f := range frames {
		headers := eventstream.Headers{}
		if f.messageType != "" {
			headers = append(headers, eventstream.Header{Name: ":message-type", Value: eventstream.StringValue(f.messageType)})
		}
		if f.eventType != "" {
			headers = append(headers, eventstream.Header{Name: ":event-type", Value: eventstream.StringValue(f.eventType)})
		}
		headers = append(headers, f.headers...)
		require.NoError(t, enc.Encode(&buf, eventstream.Message{Headers: headers, Payload: []byte(f.payload)}))
	}
	return buf.Bytes()
}

func newTestBedrock(t *testing.T, handler http.HandlerFunc) (*Bedrock, *recordingAuth) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	auth := &recordingAuth{}
	return NewBedrock(slog.New(slog.DiscardHandler), srv.Client(), srv.URL+"/", auth), auth
}

func testInput() *awsbedrock.ConverseInput {
	return &awsbedrock.ConverseInput{
		ModelID: "us.anthropic.claude-3:0",
		Messages: []*awsbedrock.Message{{
			Role:    awsbedrock.ConversationRoleUser,
			Content: []*awsbedrock.ContentBlock{{Text: ptr.To("hi")}},
		}},
	}
}

func drain(t *testing.T, s *EventStream) ([]*awsbedrock.ConverseStreamEvent, error) {
	t.Helper()
	var events []*awsbedrock.ConverseStreamEvent
	for {
		e, err := s.Recv(t.Context())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return events, nil
			}
			return events, err
		}
		events = append(events, e)
	}
}

func TestBedrock_ConverseStream(t *testing.T) {
	var gotPath, gotAuth, gotAccept string
	var gotBody []byte
	b, auth := newTestBedrock(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/vnd.amazon.eventstream")
		_, _ = w.Write(encodeFrames(t,
			frame{messageType: "event", eventType: "messageStart", payload: `{"role":"assistant"}`},
			frame{messageType: "event", eventType: "contentBlockDelta", payload: `{"contentBlockIndex":0,"delta":{"text":"Hi"}}`},
			frame{eventType: "messageStop", payload: `{"stopReason":"end_turn"}`},
			frame{messageType: "event", eventType: "metadata", payload: `{"usage":{"inputTokens":5,"outputTokens":2,"totalTokens":7},"metrics":{"latencyMs":12}}`},
		))
	})

	stream, err := b.ConverseStream(t.Context(), testInput())
	require.NoError(t, err)
	defer func() { require.NoError(t, stream.Close()) }()

	require.Equal(t, "/model/us.anthropic.claude-3:0/converse-stream", gotPath)
	require.Equal(t, "test", gotAuth)
	require.Equal(t, "application/vnd.amazon.eventstream", gotAccept)
	require.Equal(t, "hi", gjson.GetBytes(gotBody, "messages.0.content.0.text").String())
	require.False(t, gjson.GetBytes(gotBody, "ModelID").Exists())
	require.Equal(t, [][]byte{gotBody}, auth.bodies)

	events, err := drain(t, stream)
	require.NoError(t, err)
	require.Len(t, events, 4)
	require.Equal(t, "assistant", events[0].MessageStart.Role)
	require.Equal(t, "Hi", *events[1].ContentBlockDelta.Delta.Text)
	require.Equal(t, awsbedrock.StopReasonEndTurn, events[2].MessageStop.StopReason)
	require.Equal(t, 7, events[3].Metadata.Usage.TotalTokens)
	require.Equal(t, int64(12), events[3].Metadata.Metrics.LatencyMs)
}

func TestBedrock_ConverseStream_translatedStream(t *testing.T) {
	b, _ := newTestBedrock(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(encodeFrames(t,
			frame{messageType: "event", eventType: "messageStart", payload: `{"role":"assistant"}`},
			frame{messageType: "event", eventType: "contentBlockDelta", payload: `{"contentBlockIndex":0,"delta":{"text":"Hi"}}`},
			frame{messageType: "event", eventType: "messageStop", payload: `{"stopReason":"end_turn"}`},
			frame{messageType: "event", eventType: "metadata", payload: `{"usage":{"inputTokens":5,"outputTokens":2,"totalTokens":7}}`},
		))
	})
	stream, err := b.ConverseStream(t.Context(), testInput())
	require.NoError(t, err)
	defer stream.Close()

	var usage []int
	var data []string
	for e := range translator.TranslateStream(t.Context(), "m", stream, func(u openai.Usage) { usage = append(usage, u.TotalTokens) }) {
		data = append(data, string(e.Data))
	}
	require.Len(t, data, 5)
	require.Equal(t, "Hi", gjson.Get(data[1], "choices.0.delta.content").String())
	require.Equal(t, "[DONE]", data[4])
	require.Equal(t, []int{7}, usage)
}

func TestBedrock_ConverseStream_exceptions(t *testing.T) {
	for _, tc := range []struct {
		name   string
		frames []frame
		expErr string
	}{
		{
			name: "exception frame",
			frames: []frame{
				{messageType: "event", eventType: "messageStart", payload: `{"role":"assistant"}`},
				{
					messageType: "exception",
					payload:     `{"message":"Too many tokens, please wait before trying again."}`,
					headers: eventstream.Headers{{
						Name: ":exception-type", Value: eventstream.StringValue("throttlingException"),
					}},
				},
			},
			expErr: "stream receive error: throttlingException: Too many tokens, please wait before trying again.",
		},
		{
			name: "error frame",
			frames: []frame{{
				messageType: "error",
				headers: eventstream.Headers{
					{Name: ":error-code", Value: eventstream.StringValue("InternalFailure")},
					{Name: ":error-message", Value: eventstream.StringValue("oops")},
				},
			}},
			expErr: "stream receive error: InternalFailure: oops",
		},
		{
			name:   "malformed payload",
			frames: []frame{{messageType: "event", eventType: "messageStop", payload: `{"stopReason":`}},
			expErr: "stream receive error: failed to decode messageStop event: unexpected end of JSON input",
		},
		{
			name:   "unknown message type",
			frames: []frame{{messageType: "surprise"}},
			expErr: `stream receive error: unknown event stream message type "surprise"`,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := newTestBedrock(t, func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write(encodeFrames(t, tc.frames...))
			})
			stream, err := b.ConverseStream(t.Context(), testInput())
			require.NoError(t, err)
			defer stream.Close()

			_, err = drain(t, stream)
			var streamErr *translator.StreamReceiveError
			require.ErrorAs(t, err, &streamErr)
			require.EqualError(t, err, tc.expErr)
		})
	}
}

func TestBedrock_ConverseStream_truncatedFrame(t *testing.T) {
	b, _ := newTestBedrock(t, func(w http.ResponseWriter, _ *http.Request) {
		raw := encodeFrames(t, frame{messageType: "event", eventType: "messageStart", payload: `{"role":"assistant"}`})
		_, _ = w.Write(raw[:len(raw)-3])
	})
	stream, err := b.ConverseStream(t.Context(), testInput())
	require.NoError(t, err)
	defer stream.Close()

	_, err = drain(t, stream)
	var streamErr *translator.StreamReceiveError
	require.ErrorAs(t, err, &streamErr)
	require.ErrorContains(t, err, "failed to decode event stream frame")
}

func TestBedrock_ConverseStream_errorResponse(t *testing.T) {
	for _, tc := range []struct {
		name        string
		status      int
		errType     string
		body        string
		expErr      string
		expCategory translator.Category
	}{
		{
			name:        "throttled",
			status:      http.StatusTooManyRequests,
			errType:     "ThrottlingException:http://internal.amazon.com/coral/com.amazon.bedrock/",
			body:        `{"message":"Rate exceeded"}`,
			expErr:      "connection error: ThrottlingException: Rate exceeded",
			expCategory: translator.CategoryThrottled,
		},
		{
			name:        "access denied",
			status:      http.StatusForbidden,
			errType:     "AccessDeniedException",
			body:        `{"Message":"You don't have access to the model with the specified model ID."}`,
			expErr:      "connection error: AccessDeniedException: You don't have access to the model with the specified model ID.",
			expCategory: translator.CategoryAccessDenied,
		},
		{
			name:        "not found",
			status:      http.StatusNotFound,
			errType:     "ResourceNotFoundException",
			body:        `{"message":"Model not found"}`,
			expErr:      "connection error: ResourceNotFoundException: Model not found",
			expCategory: translator.CategoryNotFound,
		},
		{
			name:        "plain text body without type",
			status:      http.StatusServiceUnavailable,
			body:        "upstream connect error\n",
			expErr:      "connection error: HTTP 503: upstream connect error",
			expCategory: translator.CategoryServerError,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := newTestBedrock(t, func(w http.ResponseWriter, _ *http.Request) {
				if tc.errType != "" {
					w.Header().Set("x-amzn-errortype", tc.errType)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			stream, err := b.ConverseStream(t.Context(), testInput())
			require.Nil(t, stream)
			var connErr *translator.ConnectionError
			require.ErrorAs(t, err, &connErr)
			require.EqualError(t, err, tc.expErr)
			require.Equal(t, tc.expCategory, translator.ClassifyError(err).Category)
		})
	}
}

func TestBedrock_ConverseStream_authError(t *testing.T) {
	b, auth := newTestBedrock(t, func(http.ResponseWriter, *http.Request) {
		t.Error("request must not be sent")
	})
	auth.err = errors.New("cannot retrieve AWS credentials")
	_, err := b.ConverseStream(t.Context(), testInput())
	var connErr *translator.ConnectionError
	require.ErrorAs(t, err, &connErr)
}

func TestBedrock_ConverseStream_unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	b := NewBedrock(slog.New(slog.DiscardHandler), nil, srv.URL, &recordingAuth{})
	_, err := b.ConverseStream(t.Context(), testInput())
	var connErr *translator.ConnectionError
	require.ErrorAs(t, err, &connErr)
	require.Equal(t, translator.CodeConnectionError, translator.ClassifyError(err).Code)
}

func TestEventStream_Recv_canceled(t *testing.T) {
	s := &EventStream{body: io.NopCloser(bytes.NewReader(nil)), dec: eventstream.NewDecoder()}
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	_, err := s.Recv(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestBedrockEndpoint(t *testing.T) {
	require.Equal(t, "https://bedrock-runtime.eu-west-1.amazonaws.com", BedrockEndpoint("eu-west-1"))
}
