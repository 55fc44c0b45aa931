// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package provider contains the clients of the upstream providers: the AWS Bedrock
// ConverseStream API and OpenAI compatible chat completion APIs.
package provider

import (
	"fmt"
	"net/http"
	"strings"
)

// Name identifies an upstream provider.
type Name string

const (
	// NameOpenAI is the OpenAI chat completions API, relayed as is.
	NameOpenAI Name = "openai"
	// NameBedrock is the AWS Bedrock ConverseStream API.
	NameBedrock Name = "bedrock"
)

// ParseName returns the provider named s, case-insensitively.
func ParseName(s string) (Name, error) {
	switch n := Name(strings.ToLower(strings.TrimSpace(s))); n {
	case NameOpenAI, NameBedrock:
		return n, nil
	default:
		return "", fmt.Errorf("unknown provider %q", s)
	}
}

const (
	contentTypeHeaderName = "Content-Type"
	acceptHeaderName      = "Accept"
	jsonContentType       = "application/json"
	eventStreamType       = "application/vnd.amazon.eventstream"
	sseContentType        = "text/event-stream"

	// maxErrorBodySize bounds how much of an error response is kept.
	maxErrorBodySize = 64 * 1024
)

// DefaultHTTPClient is shared by providers when no client is given. It has no
// overall timeout since responses are streamed.
var DefaultHTTPClient = &http.Client{}
