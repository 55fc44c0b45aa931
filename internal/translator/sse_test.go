// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvent(t *testing.T) {
	done := DoneEvent()
	require.True(t, done.IsDone())
	require.Equal(t, "data: [DONE]\n\n", string(done.Bytes()))

	e := Event{Data: []byte(`{"a":1}`)}
	require.False(t, e.IsDone())
	var buf bytes.Buffer
	n, err := e.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(len("data: {\"a\":1}\n\n")), n)
	require.Equal(t, "data: {\"a\":1}\n\n", buf.String())
}

func TestErrorEvent(t *testing.T) {
	e := ErrorEvent(&ConnectionError{Err: errors.New("ValidationException: model does not exist")})
	require.JSONEq(t, `{"error":{
		"message":"The requested model was not found: ValidationException: model does not exist",
		"type":"invalid_request_error","param":null,"code":"model_not_found"}}`, string(e.Data))
	require.Nil(t, e.Chunk)
}

func TestErrorEvent_fallback(t *testing.T) {
	orig := jsonMarshal
	t.Cleanup(func() { jsonMarshal = orig })
	jsonMarshal = func(any) ([]byte, error) { return nil, errors.New("broken encoder") }

	e := ErrorEvent(&StreamReceiveError{Err: errors.New("bad \"quote\" \\ and\nnewline")})
	require.True(t, json.Valid(e.Data), string(e.Data))
	require.JSONEq(t, `{"error":{
		"message":"Stream receive error: bad \"quote\" \\ and\nnewline",
		"type":"server_error","param":null,"code":"stream_receive_error"}}`, string(e.Data))
}

func TestAppendJSONString(t *testing.T) {
	for _, s := range []string{"", "plain", `q"uote`, `back\slash`, "tab\tnl\n", "üñí€", "\x00\x1f"} {
		var got string
		require.NoError(t, json.Unmarshal(appendJSONString(nil, s), &got))
		require.Equal(t, s, got)
	}
}
