// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package backendauth authenticates the requests sent to upstream providers.
package backendauth

import (
	"context"
	"net/http"
)

// Handler adds credentials to an outgoing upstream request.
//
// Implementations must be safe for concurrent use since a single handler serves
// every request to its provider.
type Handler interface {
	// Do authenticates req in place. body is the exact request body, which some
	// schemes need to sign.
	Do(ctx context.Context, req *http.Request, body []byte) error
}

// AWSAuth configures AWS SigV4 signing.
type AWSAuth struct {
	// Region is the AWS region. When empty, the region of the default AWS
	// configuration chain is used, falling back to DefaultAWSRegion.
	Region string
	// CredentialFileLiteral is the content of a shared credentials file. When empty,
	// the default credential chain is used.
	CredentialFileLiteral string
}

// DefaultAWSRegion is used when no region is configured anywhere.
const DefaultAWSRegion = "us-east-1"
