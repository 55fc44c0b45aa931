// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package gateway serves the OpenAI compatible chat completions API. Requests are
// routed by model to either AWS Bedrock, translated both ways, or to an OpenAI
// compatible API whose stream is re-chunked. Responses are always streamed.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/provider"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
)

const (
	maxRequestBodySize  = 10 << 20
	shutdownGracePeriod = 10 * time.Second
	readHeaderTimeout   = 30 * time.Second
	idleTimeout         = 120 * time.Second
)

// Options configures a Server. Logger, Router, Bedrock and Metrics are required.
type Options struct {
	Logger *slog.Logger
	Router *provider.Router
	// Bedrock serves every model not routed to OpenAI.
	Bedrock *provider.Bedrock
	// OpenAI is nil when no API key is configured, in which case requests routed to
	// OpenAI are rejected.
	OpenAI  *provider.OpenAI
	Metrics metrics.ChatCompletionMetricsFactory
	// Tracer defaults to a no-op tracer.
	Tracer tracing.ChatCompletionTracer
	// CostProgram is an optional llmcostcel program evaluated once the usage of a
	// request is known.
	CostProgram cel.Program
	// RequestTimeout bounds each upstream call, zero means no timeout.
	RequestTimeout time.Duration
}

// Server is the HTTP server of the gateway.
type Server struct {
	logger         *slog.Logger
	router         *provider.Router
	bedrock        *provider.Bedrock
	openai         *provider.OpenAI
	metrics        metrics.ChatCompletionMetricsFactory
	tracer         tracing.ChatCompletionTracer
	costProgram    cel.Program
	requestTimeout time.Duration
	e              *echo.Echo
}

// New returns a Server with its routes and middleware installed.
func New(opts Options) (*Server, error) {
	switch {
	case opts.Logger == nil:
		return nil, errors.New("logger must not be nil")
	case opts.Router == nil:
		return nil, errors.New("router must not be nil")
	case opts.Bedrock == nil:
		return nil, errors.New("bedrock provider must not be nil")
	case opts.Metrics == nil:
		return nil, errors.New("metrics factory must not be nil")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.NoopChatCompletionTracer{}
	}

	s := &Server{
		logger:         opts.Logger,
		router:         opts.Router,
		bedrock:        opts.Bedrock,
		openai:         opts.OpenAI,
		metrics:        opts.Metrics,
		tracer:         tracer,
		costProgram:    opts.CostProgram,
		requestTimeout: opts.RequestTimeout,
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError

	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogLatency:  true,
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Int64("latency_ms", v.Latency.Milliseconds()),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			s.logger.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			return nil
		},
	}))

	e.GET("/health", handleHealth)
	e.POST("/v1/chat/completions", s.handleChatCompletions)
	e.POST("/chat/completions", s.handleChatCompletions)
	s.e = e
	return s, nil
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

// Serve accepts connections on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.e,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		// No WriteTimeout: responses are streams, bounded by the request timeout instead.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting gateway", slog.String("addr", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGracePeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("gateway shutdown complete")
		return nil
	case err := <-errCh:
		return err
	}
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
