// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"k8s.io/utils/ptr"

	"github.com/chatbridge/chatbridge/internal/config"
)

func Test_doMain(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		env          map[string]string
		rf           runFn
		hf           healthcheckFn
		expOut       string
		expOutparts  []string
		expPanicCode *int
	}{
		{
			name:         "help",
			args:         []string{"--help"},
			expOutparts:  []string{"Usage: chatbridge <command>", "version", "run [flags]", "healthcheck [flags]"},
			expPanicCode: ptr.To(0),
		},
		{
			name:   "version",
			args:   []string{"version"},
			expOut: "chatbridge: dev\n",
		},
		{
			name: "run",
			args: []string{"run"},
			rf: func(_ context.Context, c cmdRun, _, _ io.Writer) error {
				require.Equal(t, cmdRun{}, c)
				return nil
			},
		},
		{
			name: "run with flags",
			args: []string{
				"run", "--config", "./chatbridge.yaml", "--host", "0.0.0.0", "--port", "8080",
				"--admin-port", "9090", "--log-level", "debug", "--openai-api-key", "sk-flag", "--aws-region", "eu-west-1",
			},
			rf: func(_ context.Context, c cmdRun, _, _ io.Writer) error {
				abs, err := filepath.Abs("./chatbridge.yaml")
				require.NoError(t, err)
				require.Equal(t, cmdRun{
					Config:       abs,
					Host:         "0.0.0.0",
					Port:         8080,
					AdminPort:    9090,
					LogLevel:     "debug",
					OpenAIAPIKey: "sk-flag",
					AWSRegion:    "eu-west-1",
				}, c)
				return nil
			},
		},
		{
			name: "run with env",
			args: []string{"run"},
			env:  map[string]string{"OPENAI_API_KEY": "sk-env", "AWS_REGION": "ap-northeast-1"},
			rf: func(_ context.Context, c cmdRun, _, _ io.Writer) error {
				require.Equal(t, "sk-env", c.OpenAIAPIKey)
				require.Equal(t, "ap-northeast-1", c.AWSRegion)
				return nil
			},
		},
		{
			name:         "run help",
			args:         []string{"run", "--help"},
			expOutparts:  []string{"Usage: chatbridge run [flags]", "--config=STRING", "--openai-api-key=STRING", "($OPENAI_API_KEY)", "($AWS_REGION)"},
			expPanicCode: ptr.To(0),
		},
		{
			name: "healthcheck",
			args: []string{"healthcheck"},
			hf: func(_ context.Context, port int, _, _ io.Writer) error {
				require.Equal(t, config.DefaultAdminPort, port)
				return nil
			},
		},
		{
			name: "healthcheck with port",
			args: []string{"healthcheck", "--admin-port", "2000"},
			hf: func(_ context.Context, port int, _, _ io.Writer) error {
				require.Equal(t, 2000, port)
				return nil
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OPENAI_API_KEY", "")
			t.Setenv("AWS_REGION", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			out := &bytes.Buffer{}
			if tt.expPanicCode != nil {
				require.PanicsWithValue(t, *tt.expPanicCode, func() {
					doMain(t.Context(), out, os.Stderr, tt.args, func(code int) { panic(code) }, tt.rf, tt.hf)
				})
			} else {
				doMain(t.Context(), out, os.Stderr, tt.args, nil, tt.rf, tt.hf)
			}
			if tt.expOutparts != nil {
				for _, part := range tt.expOutparts {
					require.Contains(t, out.String(), part)
				}
			} else {
				require.Equal(t, tt.expOut, out.String())
			}
		})
	}
}

func Test_doMain_invalidFlags(t *testing.T) {
	for _, args := range [][]string{
		{"run", "--log-level", "verbose"},
		{"run", "--port", "70000"},
		{"run", "--admin-port", "-1"},
		{"unknown"},
	} {
		t.Run(args[len(args)-1], func(t *testing.T) {
			require.Panics(t, func() {
				doMain(t.Context(), io.Discard, io.Discard, args, func(code int) { panic(code) }, nil, nil)
			})
		})
	}
}

func TestCmdRun_Validate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		cmd    cmdRun
		expErr string
	}{
		{name: "empty", cmd: cmdRun{}},
		{name: "all set", cmd: cmdRun{Port: 8080, AdminPort: 9090, LogLevel: "warn"}},
		{name: "invalid port", cmd: cmdRun{Port: 65536}, expErr: "invalid port 65536"},
		{name: "invalid admin port", cmd: cmdRun{AdminPort: -1}, expErr: "invalid admin-port -1"},
		{name: "invalid log level", cmd: cmdRun{LogLevel: "verbose"}, expErr: `invalid log-level "verbose"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cmd.Validate()
			if tc.expErr != "" {
				require.EqualError(t, err, tc.expErr)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestCmdRun_loadConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := (&cmdRun{}).loadConfig()
		require.NoError(t, err)
		require.Equal(t, config.Default(), cfg)
	})

	path := filepath.Join(t.TempDir(), "chatbridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: 4000
logLevel: warn
openai:
  apiKey: sk-file
bedrock:
  region: us-west-2
`), 0o600))

	t.Run("file", func(t *testing.T) {
		cfg, err := (&cmdRun{Config: path}).loadConfig()
		require.NoError(t, err)
		require.Equal(t, 4000, cfg.Port)
		require.Equal(t, config.DefaultAdminPort, cfg.AdminPort)
		require.Equal(t, "warn", cfg.LogLevel)
		require.Equal(t, "sk-file", cfg.OpenAI.APIKey)
		require.Equal(t, "us-west-2", cfg.Bedrock.Region)
	})

	t.Run("flags override the file", func(t *testing.T) {
		cfg, err := (&cmdRun{
			Config:       path,
			Host:         "0.0.0.0",
			Port:         5000,
			AdminPort:    5001,
			LogLevel:     "debug",
			OpenAIAPIKey: "sk-flag",
			AWSRegion:    "eu-central-1",
		}).loadConfig()
		require.NoError(t, err)
		require.Equal(t, "0.0.0.0", cfg.Host)
		require.Equal(t, 5000, cfg.Port)
		require.Equal(t, 5001, cfg.AdminPort)
		require.Equal(t, "debug", cfg.LogLevel)
		require.Equal(t, "sk-flag", cfg.OpenAI.APIKey)
		require.Equal(t, "eu-central-1", cfg.Bedrock.Region)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := (&cmdRun{Config: filepath.Join(t.TempDir(), "missing.yaml")}).loadConfig()
		require.ErrorContains(t, err, "failed to load config")
	})

	t.Run("invalid after overrides", func(t *testing.T) {
		_, err := (&cmdRun{Config: path, AdminPort: 4000}).loadConfig()
		require.EqualError(t, err, "invalid config: adminPort must differ from port 4000")
	})
}
