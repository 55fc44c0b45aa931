// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package translator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
)

// TranslationError is returned when a request cannot be expressed for the backend.
// It is always raised before any backend call is made.
type TranslationError struct {
	Message string
}

// Error implements [error].
func (e *TranslationError) Error() string { return e.Message }

func translationErrorf(format string, args ...any) *TranslationError {
	return &TranslationError{Message: fmt.Sprintf(format, args...)}
}

// ConnectionError is returned when the backend could not be reached or rejected the
// request before any event was streamed.
type ConnectionError struct {
	Err error
}

// Error implements [error].
func (e *ConnectionError) Error() string { return "connection error: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error { return e.Err }

// StreamReceiveError is returned when the stream fails after it has started.
type StreamReceiveError struct {
	Err error
}

// Error implements [error].
func (e *StreamReceiveError) Error() string { return "stream receive error: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *StreamReceiveError) Unwrap() error { return e.Err }

// SerializationError is returned when a chunk cannot be encoded as JSON.
type SerializationError struct {
	Err error
}

// Error implements [error].
func (e *SerializationError) Error() string { return "serialization error: " + e.Err.Error() }

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error { return e.Err }

// Stage is where in the request lifecycle a failure happened. It selects the error
// code of failures that match no specific category.
type Stage int

const (
	// StageConnect is the initial request to the backend.
	StageConnect Stage = iota
	// StageStream is after the response stream has started.
	StageStream
	// StageSerialize is the encoding of a chunk.
	StageSerialize
)

// Category is a user facing class of backend failure.
type Category string

// Error categories.
const (
	CategoryAccessDenied Category = "access_denied"
	CategoryNotFound     Category = "not_found"
	CategoryThrottled    Category = "throttled"
	CategoryServerError  Category = "server_error"
)

// Error codes.
const (
	CodeModelAccess        = "model_access_error"
	CodeModelNotFound      = "model_not_found"
	CodeRateLimitExceeded  = "rate_limit_exceeded"
	CodeConnectionError    = "connection_error"
	CodeStreamReceiveError = "stream_receive_error"
	CodeSerializationError = "serialization_error"
)

// Classification is the user facing shape of a backend failure.
type Classification struct {
	Category Category
	Code     string
	Message  string
}

// Classify maps the text of a backend or transport failure onto a Category. Matching
// is done on the lower-cased text, first match wins:
//
//  1. "access" together with "model" or "denied": access denied.
//  2. "not found" or "does not exist": not found.
//  3. "throttl", "rate" or "limit": throttled.
//  4. anything else is a server error whose code depends on stage.
func Classify(text string, stage Stage) Classification {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "access") && (strings.Contains(lower, "model") || strings.Contains(lower, "denied")):
		return Classification{
			Category: CategoryAccessDenied,
			Code:     CodeModelAccess,
			Message:  "Access denied to the requested model: " + text,
		}
	case strings.Contains(lower, "not found") || strings.Contains(lower, "does not exist"):
		return Classification{
			Category: CategoryNotFound,
			Code:     CodeModelNotFound,
			Message:  "The requested model was not found: " + text,
		}
	case strings.Contains(lower, "throttl") || strings.Contains(lower, "rate") || strings.Contains(lower, "limit"):
		return Classification{
			Category: CategoryThrottled,
			Code:     CodeRateLimitExceeded,
			Message:  "Rate limit exceeded: " + text,
		}
	}
	switch stage {
	case StageStream:
		return Classification{Category: CategoryServerError, Code: CodeStreamReceiveError, Message: "Stream receive error: " + text}
	case StageSerialize:
		return Classification{Category: CategoryServerError, Code: CodeSerializationError, Message: "Serialization error: " + text}
	default:
		return Classification{Category: CategoryServerError, Code: CodeConnectionError, Message: "Connection error: " + text}
	}
}

// ClassifyError classifies err using the stage implied by its type. Untyped errors
// are treated as connection failures.
func ClassifyError(err error) Classification {
	var (
		streamErr    *StreamReceiveError
		serializeErr *SerializationError
		connErr      *ConnectionError
	)
	switch {
	case errors.As(err, &streamErr):
		return Classify(streamErr.Err.Error(), StageStream)
	case errors.As(err, &serializeErr):
		return Classify(serializeErr.Err.Error(), StageSerialize)
	case errors.As(err, &connErr):
		return Classify(connErr.Err.Error(), StageConnect)
	default:
		return Classify(err.Error(), StageConnect)
	}
}

// HTTPStatus returns the status code used when the failure is reported before the
// response stream has started.
func (c Classification) HTTPStatus() int {
	switch c.Category {
	case CategoryAccessDenied:
		return http.StatusForbidden
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryThrottled:
		return http.StatusTooManyRequests
	default:
		if c.Code == CodeSerializationError {
			return http.StatusInternalServerError
		}
		return http.StatusBadGateway
	}
}

// ErrorType returns the OpenAI error type of the classification.
func (c Classification) ErrorType() string {
	switch c.Category {
	case CategoryAccessDenied:
		return "permission_error"
	case CategoryNotFound:
		return "invalid_request_error"
	case CategoryThrottled:
		return "rate_limit_error"
	default:
		return "server_error"
	}
}

// OpenAIError returns the OpenAI error envelope of the classification.
func (c Classification) OpenAIError() *openai.Error {
	code := c.Code
	return &openai.Error{Error: openai.ErrorType{
		Message: c.Message,
		Type:    c.ErrorType(),
		Code:    &code,
	}}
}
