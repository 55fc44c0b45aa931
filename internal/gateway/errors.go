// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	"github.com/chatbridge/chatbridge/internal/translator"
)

const (
	errorTypeInvalidRequest = "invalid_request_error"
	errorTypeServer         = "server_error"

	codeStreamRequired = "stream_required"
	codeMissingAPIKey  = "missing_api_key"
)

// requestError is an error reported before the response stream has started.
type requestError struct {
	status  int
	message string
	errType string
	code    string
}

func (e *requestError) Error() string { return e.message }

// metricsErrorType is the error.type attribute of the request metrics.
func (e *requestError) metricsErrorType() string {
	if e.code != "" {
		return e.code
	}
	return e.errType
}

func (e *requestError) openAIError() *openai.Error {
	oe := &openai.Error{Error: openai.ErrorType{Message: e.message, Type: e.errType}}
	if e.code != "" {
		code := e.code
		oe.Error.Code = &code
	}
	return oe
}

func invalidRequestError(message string) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, errType: errorTypeInvalidRequest}
}

var (
	errStreamingRequired = &requestError{
		status:  http.StatusBadRequest,
		message: "Streaming is required but was disabled",
		errType: errorTypeInvalidRequest,
		code:    codeStreamRequired,
	}
	errMissingAPIKey = &requestError{
		status:  http.StatusBadRequest,
		message: "OpenAI API key is not configured but an OpenAI model was requested",
		errType: errorTypeInvalidRequest,
		code:    codeMissingAPIKey,
	}
)

// toRequestError converts a failure to open the upstream stream. Backend failures
// are classified so that throttling, missing models and denied access keep their
// meaning for the client.
func toRequestError(err error) *requestError {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return reqErr
	}
	var translationErr *translator.TranslationError
	if errors.As(err, &translationErr) {
		return invalidRequestError(translationErr.Message)
	}
	c := translator.ClassifyError(err)
	return &requestError{
		status:  c.HTTPStatus(),
		message: c.Message,
		errType: c.ErrorType(),
		code:    c.Code,
	}
}

// handleError is the echo.HTTPErrorHandler writing every error as an OpenAI error
// envelope.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	var reqErr *requestError
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &reqErr):
	case errors.As(err, &httpErr):
		reqErr = &requestError{status: httpErr.Code, message: http.StatusText(httpErr.Code), errType: errorTypeInvalidRequest}
		if m, ok := httpErr.Message.(string); ok {
			reqErr.message = m
		}
		if httpErr.Code >= http.StatusInternalServerError {
			reqErr.errType = errorTypeServer
		}
	default:
		s.logger.Error("unhandled error", "error", err)
		reqErr = &requestError{status: http.StatusInternalServerError, message: "internal server error", errType: errorTypeServer}
	}
	if err := c.JSON(reqErr.status, reqErr.openAIError()); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

// streamErrorStatus maps the error event of a started stream to the status the
// same failure would have had before the stream started.
func streamErrorStatus(data []byte) (status int, code string) {
	code = gjson.GetBytes(data, "error.code").String()
	switch gjson.GetBytes(data, "error.type").String() {
	case "permission_error":
		return http.StatusForbidden, code
	case "invalid_request_error":
		return http.StatusNotFound, code
	case "rate_limit_error":
		return http.StatusTooManyRequests, code
	default:
		if code == translator.CodeSerializationError {
			return http.StatusInternalServerError, code
		}
		return http.StatusBadGateway, code
	}
}
