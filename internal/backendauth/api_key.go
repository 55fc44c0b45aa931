// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package backendauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// apiKeyHandler implements [Handler] for api key authz.
type apiKeyHandler struct {
	apiKey string
}

// NewAPIKeyHandler returns a Handler sending key as a bearer token.
func NewAPIKeyHandler(key string) (Handler, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("api key is required")
	}
	return &apiKeyHandler{apiKey: key}, nil
}

// Do implements [Handler.Do].
func (a *apiKeyHandler) Do(_ context.Context, req *http.Request, _ []byte) error {
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", a.apiKey))
	return nil
}
