// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	adminHealthTimeout = 5 * time.Second
	// maxHealthBodySize bounds what is read from the admin server.
	maxHealthBodySize = 4 << 10
)

// healthcheck asks the admin server on port whether the gateway is healthy. The
// admin server answers by probing the gateway listener, so a nil error means the
// gateway itself accepts requests. Used as the Docker HEALTHCHECK.
func healthcheck(ctx context.Context, port int, stdout, _ io.Writer) error {
	ctx, cancel := context.WithTimeout(ctx, adminHealthTimeout)
	defer cancel()

	u := url.URL{Scheme: "http", Host: net.JoinHostPort("localhost", strconv.Itoa(port)), Path: "/health"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to admin server on port %d: %w", port, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHealthBodySize))
	if err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}
	status := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy (status %d): %s", resp.StatusCode, status)
	}
	_, _ = fmt.Fprintln(stdout, status)
	return nil
}
