// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package pprof serves the net/http/pprof endpoints for debugging.
package pprof

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"time"
)

const (
	// DefaultAddr is the same default port as in the Go pprof documentation.
	DefaultAddr = "localhost:6060"
	// DisableEnvVarKey is the environment variable name to disable the pprof server.
	// If this environment variable is set to any value, the pprof server will not be started.
	DisableEnvVarKey = "DISABLE_PPROF"
)

// Run starts the pprof server on addr unless DISABLE_PPROF is set, and stops it
// when ctx is done. It returns the address listened on, or nil when disabled.
//
// The impact should be negligible when the endpoints are not being accessed.
func Run(ctx context.Context, logger *slog.Logger, addr string) (net.Addr, error) {
	if _, ok := os.LookupEnv(DisableEnvVarKey); ok {
		return nil, nil
	}
	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for pprof: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("starting pprof server", slog.String("addr", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("pprof server stopped", slog.String("error", err.Error()))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error shutting down pprof server", slog.String("error", err.Error()))
		}
	}()
	return ln.Addr(), nil
}
