// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package llmcostcel computes the cost of a request from its token usage with
// a CEL expression.
//
// The expression can use the following variables:
//   - model: the model of the request, a string.
//   - backend: the provider serving the request, "openai" or "bedrock".
//   - input_tokens, cached_input_tokens, output_tokens and total_tokens: the token
//     usage, unsigned integers. cached_input_tokens is zero unless the backend reports
//     prompt cache reads.
//
// The result must be an integer, and non-negative when signed.
package llmcostcel

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
)

const (
	celModelNameKey         = "model"
	celBackendKey           = "backend"
	celInputTokensKey       = "input_tokens"
	celCachedInputTokensKey = "cached_input_tokens"
	celOutputTokensKey      = "output_tokens"
	celTotalTokensKey       = "total_tokens"
)

var env *cel.Env

func init() {
	var err error
	env, err = cel.NewEnv(
		cel.Variable(celModelNameKey, cel.StringType),
		cel.Variable(celBackendKey, cel.StringType),
		cel.Variable(celInputTokensKey, cel.UintType),
		cel.Variable(celCachedInputTokensKey, cel.UintType),
		cel.Variable(celOutputTokensKey, cel.UintType),
		cel.Variable(celTotalTokensKey, cel.UintType),
	)
	if err != nil {
		panic(fmt.Sprintf("cannot create CEL environment: %v", err))
	}
}

// NewProgram compiles expr. The returned program is safe for concurrent use.
func NewProgram(expr string) (prog cel.Program, err error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("cannot compile CEL expression: %w", issues.Err())
	}
	prog, err = env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cannot create CEL program: %w", err)
	}

	// Catch expressions that fail regardless of the input, such as a constant overflow.
	if _, err = EvaluateProgram(prog, "dummy", "dummy", 0, 0, 0, 0); err != nil {
		return nil, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}
	return prog, nil
}

// EvaluateProgram evaluates prog with the given request values.
func EvaluateProgram(prog cel.Program, modelName, backend string, inputTokens, cachedInputTokens, outputTokens, totalTokens uint32) (uint64, error) {
	out, _, err := prog.Eval(map[string]any{
		celModelNameKey:         modelName,
		celBackendKey:           backend,
		celInputTokensKey:       uint64(inputTokens),
		celCachedInputTokensKey: uint64(cachedInputTokens),
		celOutputTokensKey:      uint64(outputTokens),
		celTotalTokensKey:       uint64(totalTokens),
	})
	if err != nil || out == nil {
		return 0, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	switch out.Type() {
	case types.IntType:
		result := out.Value().(int64)
		if result < 0 {
			return 0, fmt.Errorf("CEL expression result is negative (%d)", result)
		}
		return uint64(result), nil
	case types.UintType:
		return out.Value().(uint64), nil
	default:
		return 0, fmt.Errorf("CEL expression result is not an integer, got %v", out.Type())
	}
}
