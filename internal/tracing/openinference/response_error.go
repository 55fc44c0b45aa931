// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openinference

import (
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrorCode is the span event attribute carrying the stable code of an OpenAI
// error envelope, such as rate_limit_exceeded.
const ErrorCode = "error.code"

// RecordResponseError adds an "exception" event for an error response and sets
// the span status to error. When body is an OpenAI error envelope, its message
// and code are used instead of the raw body.
func RecordResponseError(span trace.Span, statusCode int, body []byte) {
	msg := fmt.Sprintf("Error code: %d", statusCode)
	if m := gjson.GetBytes(body, "error.message"); m.Type == gjson.String {
		msg = fmt.Sprintf("Error code: %d - %s", statusCode, m.String())
	} else if len(body) > 0 {
		msg = fmt.Sprintf("Error code: %d - %s", statusCode, body)
	}

	// The event name MUST be "exception" per the OpenTelemetry conventions.
	attrs := []attribute.KeyValue{
		attribute.String("exception.type", exceptionType(statusCode)),
		attribute.String("exception.message", msg),
	}
	if code := gjson.GetBytes(body, "error.code"); code.Type == gjson.String {
		attrs = append(attrs, attribute.String(ErrorCode, code.String()))
	}
	span.AddEvent("exception", trace.WithAttributes(attrs...))
	span.SetStatus(codes.Error, msg)
}

// exceptionType follows the error class names of the OpenAI SDKs.
func exceptionType(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BadRequestError"
	case http.StatusUnauthorized:
		return "AuthenticationError"
	case http.StatusForbidden:
		return "PermissionDeniedError"
	case http.StatusNotFound:
		return "NotFoundError"
	case http.StatusTooManyRequests:
		return "RateLimitError"
	}
	if statusCode >= http.StatusInternalServerError {
		return "InternalServerError"
	}
	return "Error"
}
