// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/chatbridge/chatbridge/internal/config"
	"github.com/chatbridge/chatbridge/internal/version"
)

type (
	// cmd corresponds to the top-level `chatbridge` command.
	cmd struct {
		// Version is the sub-command to show the version.
		Version struct{} `cmd:"" help:"Show version."`
		// Run is the sub-command parsed by the `cmdRun` struct.
		Run cmdRun `cmd:"" help:"Run the gateway."`
		// Healthcheck is the sub-command to check if the chatbridge server is healthy.
		Healthcheck cmdHealthcheck `cmd:"" help:"Docker HEALTHCHECK command."`
	}
	// cmdRun corresponds to `chatbridge run` command. Flags override the
	// configuration file.
	cmdRun struct {
		Config       string `help:"Path to the YAML configuration file. Optional." type:"path"`
		Host         string `help:"Address to listen on (default 127.0.0.1)."`
		Port         int    `help:"Port of the OpenAI compatible API (default 3000)."`
		AdminPort    int    `help:"HTTP port for the admin server (serves /metrics and /health endpoints, default 1064)."`
		LogLevel     string `help:"One of debug, info, warn or error (default info)."`
		OpenAIAPIKey string `name:"openai-api-key" env:"OPENAI_API_KEY" help:"API key of the OpenAI provider. OpenAI models are rejected without it."`
		AWSRegion    string `name:"aws-region" env:"AWS_REGION" help:"AWS region of Bedrock. Defaults to the AWS configuration chain."`
	}
	// cmdHealthcheck corresponds to `chatbridge healthcheck` command.
	cmdHealthcheck struct {
		AdminPort int `help:"HTTP port of the admin server to check." default:"1064"`
	}
)

// Validate is called by Kong after parsing to validate the cmdRun arguments.
func (c *cmdRun) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("invalid admin-port %d", c.AdminPort)
	}
	if c.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
			return fmt.Errorf("invalid log-level %q", c.LogLevel)
		}
	}
	return nil
}

// loadConfig reads the configuration file, if any, and applies the flags on top.
func (c *cmdRun) loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if c.Config != "" {
		var err error
		if cfg, err = config.Load(c.Config); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}
	if c.Host != "" {
		cfg.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Port = c.Port
	}
	if c.AdminPort != 0 {
		cfg.AdminPort = c.AdminPort
	}
	if c.LogLevel != "" {
		cfg.LogLevel = c.LogLevel
	}
	if c.OpenAIAPIKey != "" {
		cfg.OpenAI.APIKey = c.OpenAIAPIKey
	}
	if c.AWSRegion != "" {
		cfg.Bedrock.Region = c.AWSRegion
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

type (
	runFn         func(context.Context, cmdRun, io.Writer, io.Writer) error
	healthcheckFn func(context.Context, int, io.Writer, io.Writer) error
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	doMain(ctx, os.Stdout, os.Stderr, os.Args[1:], os.Exit, run, healthcheck)
}

// doMain is the main entry point for the CLI. It parses the command line arguments and executes the appropriate command.
//
//   - stdout is the writer to use for standard output. Mainly for testing.
//   - stderr is the writer to use for standard error. Mainly for testing.
//   - `args` are the command line arguments without the program name.
//   - exitFn is the function to call to exit the program during the parsing of the command line arguments. Mainly for testing.
//   - rf is the function to call to run the gateway. Mainly for testing.
//   - hf is the function to call to check the health of a running gateway. Mainly for testing.
func doMain(ctx context.Context, stdout, stderr io.Writer, args []string, exitFn func(int),
	rf runFn,
	hf healthcheckFn,
) {
	var c cmd
	parser, err := kong.New(&c,
		kong.Name("chatbridge"),
		kong.Description("OpenAI compatible streaming gateway for AWS Bedrock and OpenAI"),
		kong.Writers(stdout, stderr),
		kong.Exit(exitFn),
	)
	if err != nil {
		log.Fatalf("Error creating parser: %v", err)
	}
	parsed, err := parser.Parse(args)
	parser.FatalIfErrorf(err)
	switch parsed.Command() {
	case "version":
		_, _ = fmt.Fprintf(stdout, "chatbridge: %s\n", version.String())
	case "run":
		if err = rf(ctx, c.Run, stdout, stderr); err != nil {
			log.Fatalf("Error running: %v", err)
		}
	case "healthcheck":
		if err = hf(ctx, c.Healthcheck.AdminPort, stdout, stderr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
	default:
		panic("unreachable")
	}
}
