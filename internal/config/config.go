// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package config provides the configuration of the gateway.
//
// The configuration is loaded once at startup from an optional YAML file, then
// overridden by command line flags. It is never modified afterwards.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/chatbridge/chatbridge/internal/provider"
)

// Defaults.
const (
	DefaultHost      = "127.0.0.1"
	DefaultPort      = 3000
	DefaultAdminPort = 1064
)

// Config is the configuration of the gateway.
type Config struct {
	// Host is the address the gateway listens on.
	Host string `json:"host,omitempty"`
	// Port is the port of the OpenAI compatible API.
	Port int `json:"port,omitempty"`
	// AdminPort serves /metrics and /health.
	AdminPort int `json:"adminPort,omitempty"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `json:"logLevel,omitempty"`

	OpenAI  OpenAI  `json:"openai,omitempty"`
	Bedrock Bedrock `json:"bedrock,omitempty"`

	// Routes map model name prefixes to providers, first match wins. Models matching
	// no route are served by Bedrock. Defaults to sending "gpt-" models to OpenAI.
	Routes []Route `json:"routes,omitempty"`

	// LLMRequestCost is an optional CEL expression computing the cost of a request
	// from its token usage. See package llmcostcel for the available variables.
	LLMRequestCost string `json:"llmRequestCost,omitempty"`

	// RequestTimeout bounds a whole upstream call including the streamed response,
	// as a Go duration string. Unbounded when empty.
	RequestTimeout string `json:"requestTimeout,omitempty"`
}

// OpenAI configures the passthrough provider.
type OpenAI struct {
	// APIKey is sent as a bearer token. Requests routed to OpenAI are rejected
	// when it is empty.
	APIKey string `json:"apiKey,omitempty"`
	// BaseURL defaults to https://api.openai.com/v1.
	BaseURL string `json:"baseURL,omitempty"`
}

// Bedrock configures the AWS Bedrock provider.
type Bedrock struct {
	// Region defaults to the region of the AWS configuration chain.
	Region string `json:"region,omitempty"`
	// CredentialFileLiteral is the content of an AWS shared credentials file. The
	// default credential chain is used when empty.
	CredentialFileLiteral string `json:"credentialFileLiteral,omitempty"`
	// Endpoint overrides the regional Bedrock runtime endpoint.
	Endpoint string `json:"endpoint,omitempty"`
}

// Route sends models whose name starts with ModelPrefix to Provider.
type Route struct {
	ModelPrefix string `json:"modelPrefix"`
	// Provider is either "openai" or "bedrock".
	Provider string `json:"provider"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path. Absent fields take their default value.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err = yaml.UnmarshalStrict(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = DefaultHost
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.AdminPort == 0 {
		c.AdminPort = DefaultAdminPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = provider.DefaultOpenAIBaseURL
	}
}

// Validate returns every problem of the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.Port))
	}
	if c.AdminPort <= 0 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid adminPort %d", c.AdminPort))
	} else if c.AdminPort == c.Port {
		errs = append(errs, fmt.Errorf("adminPort must differ from port %d", c.Port))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if _, err := url.ParseRequestURI(c.OpenAI.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("invalid openai.baseURL: %w", err))
	}
	if c.Bedrock.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Bedrock.Endpoint); err != nil {
			errs = append(errs, fmt.Errorf("invalid bedrock.endpoint: %w", err))
		}
	}
	if _, err := c.ProviderRoutes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Timeout(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid logLevel %q: %w", c.LogLevel, err)
	}
	return level, nil
}

// ProviderRoutes converts Routes for provider.NewRouter.
func (c *Config) ProviderRoutes() ([]provider.Route, error) {
	routes := make([]provider.Route, 0, len(c.Routes))
	var errs []error
	for i, r := range c.Routes {
		name, err := provider.ParseName(r.Provider)
		if err != nil {
			errs = append(errs, fmt.Errorf("routes[%d]: %w", i, err))
			continue
		}
		if strings.TrimSpace(r.ModelPrefix) == "" {
			errs = append(errs, fmt.Errorf("routes[%d]: modelPrefix is required", i))
			continue
		}
		routes = append(routes, provider.Route{ModelPrefix: r.ModelPrefix, Provider: name})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return routes, nil
}

// Timeout parses RequestTimeout. Zero means no timeout.
func (c *Config) Timeout() (time.Duration, error) {
	if c.RequestTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid requestTimeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid requestTimeout: must not be negative")
	}
	return d, nil
}
