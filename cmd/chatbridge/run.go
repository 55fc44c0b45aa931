// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/prometheus/client_golang/prometheus"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/chatbridge/chatbridge/internal/backendauth"
	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/gateway"
	"github.com/chatbridge/chatbridge/internal/llmcostcel"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/pprof"
	"github.com/chatbridge/chatbridge/internal/provider"
	"github.com/chatbridge/chatbridge/internal/tracing"
	tracingapi "github.com/chatbridge/chatbridge/internal/tracing/api"
	"github.com/chatbridge/chatbridge/internal/version"
)

const telemetryShutdownTimeout = 5 * time.Second

// run starts the gateway and the admin server and blocks until ctx is done or
// either of them fails.
func run(ctx context.Context, c cmdRun, stdout, stderr io.Writer) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting chatbridge",
		slog.String("version", version.String()),
		slog.String("config", c.Config),
	)

	lc := net.ListenConfig{}
	gatewayLis, err := lc.Listen(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen for the gateway: %w", err)
	}
	defer func() { _ = gatewayLis.Close() }()
	adminLis, err := lc.Listen(ctx, "tcp", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.AdminPort)))
	if err != nil {
		return fmt.Errorf("failed to listen for the admin server: %w", err)
	}
	defer func() { _ = adminLis.Close() }()

	promRegistry := prometheus.NewRegistry()
	promReader, err := otelprom.New(otelprom.WithRegisterer(promRegistry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus reader: %w", err)
	}
	meter, metricsShutdown, err := metrics.NewMetricsFromEnv(ctx, stdout, promReader)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	tr, err := tracing.NewTracingFromEnv(ctx, stdout)
	if err != nil {
		return fmt.Errorf("failed to create tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryShutdownTimeout)
		defer cancel()
		if err := tr.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown tracing gracefully", slog.String("error", err.Error()))
		}
		if err := metricsShutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics gracefully", slog.String("error", err.Error()))
		}
	}()

	srv, err := newGateway(ctx, cfg, logger, meter, tr)
	if err != nil {
		return err
	}

	if _, err = pprof.Run(ctx, logger, pprof.DefaultAddr); err != nil {
		logger.Warn("pprof server is disabled", slog.String("error", err.Error()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, gatewayLis)
	})
	g.Go(func() error {
		return serveAdmin(gctx, logger, adminLis, promRegistry, gatewayHealthCheck(gatewayLis.Addr()))
	})
	logger.Info("chatbridge is ready",
		slog.String("address", gatewayLis.Addr().String()),
		slog.String("admin_address", adminLis.Addr().String()),
	)
	if err = g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newGateway builds the providers and the gateway server from cfg.
func newGateway(ctx context.Context, cfg *config.Config, logger *slog.Logger, meter metric.Meter, tr tracingapi.Tracing) (*gateway.Server, error) {
	routes, err := cfg.ProviderRoutes()
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, err
	}
	var costProgram cel.Program
	if cfg.LLMRequestCost != "" {
		if costProgram, err = llmcostcel.NewProgram(cfg.LLMRequestCost); err != nil {
			return nil, fmt.Errorf("invalid llmRequestCost: %w", err)
		}
	}

	// Upstream requests carry the trace context of the gateway span.
	httpClient := &http.Client{Transport: tr.HTTPTransport(http.DefaultTransport)}

	awsAuth, err := backendauth.NewAWSHandler(ctx, &backendauth.AWSAuth{
		Region:                cfg.Bedrock.Region,
		CredentialFileLiteral: cfg.Bedrock.CredentialFileLiteral,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS auth: %w", err)
	}
	endpoint := cfg.Bedrock.Endpoint
	if endpoint == "" {
		endpoint = provider.BedrockEndpoint(awsAuth.Region())
	}
	bedrock := provider.NewBedrock(logger.With(slog.String("provider", "bedrock")), httpClient, endpoint, awsAuth)
	logger.Info("bedrock provider configured", slog.String("region", awsAuth.Region()), slog.String("endpoint", endpoint))

	var openAI *provider.OpenAI
	if cfg.OpenAI.APIKey != "" {
		apiKey, err := backendauth.NewAPIKeyHandler(cfg.OpenAI.APIKey)
		if err != nil {
			return nil, fmt.Errorf("failed to create OpenAI auth: %w", err)
		}
		openAI = provider.NewOpenAI(logger.With(slog.String("provider", "openai")), httpClient, cfg.OpenAI.BaseURL, apiKey)
	} else {
		logger.Warn("OpenAI API key is not set, requests routed to OpenAI will be rejected")
	}

	srv, err := gateway.New(gateway.Options{
		Logger:         logger,
		Router:         provider.NewRouter(routes),
		Bedrock:        bedrock,
		OpenAI:         openAI,
		Metrics:        metrics.NewChatCompletionFactory(meter),
		Tracer:         tr.ChatCompletionTracer(),
		CostProgram:    costProgram,
		RequestTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}
	return srv, nil
}
