// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package internaltesting holds helpers shared by tests that run real servers.
package internaltesting

import (
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// RequireRandomPorts returns count distinct loopback ports that were free at the
// time of the call.
func RequireRandomPorts(t testing.TB, count int) []int {
	t.Helper()
	ports := make([]int, 0, count)
	listeners := make([]net.Listener, 0, count)
	defer func() {
		for _, l := range listeners {
			_ = l.Close()
		}
	}()
	for range count {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		listeners = append(listeners, l)
		ports = append(ports, l.Addr().(*net.TCPAddr).Port)
	}
	return ports
}

// RequireEventuallyNoError calls condition every tick until it returns nil. The
// test fails with the last error once waitFor has elapsed.
func RequireEventuallyNoError(t testing.TB, condition func() error, waitFor, tick time.Duration) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		err := condition()
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			require.FailNow(t, fmt.Sprintf("condition not satisfied after %s: %v", waitFor, err))
		}
		<-ticker.C
	}
}
