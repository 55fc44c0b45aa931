// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package openinference

import (
	"os"
	"strconv"
)

// Environment variable names for trace configuration following Python OpenInference conventions.
// See: https://github.com/Arize-ai/openinference/blob/main/spec/configuration.md
const (
	EnvHideLLMInvocationParameters = "OPENINFERENCE_HIDE_LLM_INVOCATION_PARAMETERS"
	EnvHideInputs                  = "OPENINFERENCE_HIDE_INPUTS"
	EnvHideOutputs                 = "OPENINFERENCE_HIDE_OUTPUTS"
	EnvHideInputMessages           = "OPENINFERENCE_HIDE_INPUT_MESSAGES"
	EnvHideOutputMessages          = "OPENINFERENCE_HIDE_OUTPUT_MESSAGES"
	EnvHideInputText               = "OPENINFERENCE_HIDE_INPUT_TEXT"
	EnvHideOutputText              = "OPENINFERENCE_HIDE_OUTPUT_TEXT"
)

// RedactedValue is the value used when content is hidden for privacy.
const RedactedValue = "__REDACTED__"

// TraceConfig helps you modify the observability level of your tracing.
// For instance, you may want to keep prompts out of your traces.
//
// The zero value records everything.
type TraceConfig struct {
	// HideLLMInvocationParameters controls whether LLM invocation parameters are hidden.
	// This is independent of HideInputs.
	HideLLMInvocationParameters bool
	// HideInputs hides input.value and all input messages.
	HideInputs bool
	// HideOutputs hides output.value and all output messages.
	HideOutputs bool
	// HideInputMessages hides all input messages.
	HideInputMessages bool
	// HideOutputMessages hides all output messages.
	HideOutputMessages bool
	// HideInputText redacts the text of input messages that are not already hidden.
	HideInputText bool
	// HideOutputText redacts the text of output messages that are not already hidden.
	HideOutputText bool
}

// NewTraceConfigFromEnv creates a new TraceConfig with values from environment
// variables. Unset or unparsable variables are false.
func NewTraceConfigFromEnv() *TraceConfig {
	return &TraceConfig{
		HideLLMInvocationParameters: getBoolEnv(EnvHideLLMInvocationParameters),
		HideInputs:                  getBoolEnv(EnvHideInputs),
		HideOutputs:                 getBoolEnv(EnvHideOutputs),
		HideInputMessages:           getBoolEnv(EnvHideInputMessages),
		HideOutputMessages:          getBoolEnv(EnvHideOutputMessages),
		HideInputText:               getBoolEnv(EnvHideInputText),
		HideOutputText:              getBoolEnv(EnvHideOutputText),
	}
}

func getBoolEnv(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func (c *TraceConfig) hideInputMessages() bool  { return c.HideInputs || c.HideInputMessages }
func (c *TraceConfig) hideOutputMessages() bool { return c.HideOutputs || c.HideOutputMessages }
