// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/tidwall/gjson"

	"github.com/chatbridge/chatbridge/internal/apischema/awsbedrock"
	"github.com/chatbridge/chatbridge/internal/apischema/openai"
	"github.com/chatbridge/chatbridge/internal/llmcostcel"
	"github.com/chatbridge/chatbridge/internal/metrics"
	"github.com/chatbridge/chatbridge/internal/provider"
	tracing "github.com/chatbridge/chatbridge/internal/tracing/api"
	"github.com/chatbridge/chatbridge/internal/translator"
)

// handleChatCompletions serves POST /v1/chat/completions.
func (s *Server) handleChatCompletions(c echo.Context) error {
	r := c.Request()
	body, err := io.ReadAll(http.MaxBytesReader(c.Response(), r.Body, maxRequestBodySize))
	if err != nil {
		return invalidRequestError(fmt.Sprintf("failed to read request body: %v", err))
	}
	var req openai.ChatCompletionRequest
	if err = json.Unmarshal(body, &req); err != nil {
		return invalidRequestError(fmt.Sprintf("invalid JSON payload: %v", err))
	}
	// An absent stream field is served as a stream.
	if stream := gjson.GetBytes(body, "stream"); stream.Exists() && stream.Type == gjson.False {
		s.logger.Error("streaming is required but was disabled", slog.String("model", req.Model))
		return errStreamingRequired
	}

	backend := s.router.Resolve(req.Model)
	m := s.metrics()
	m.StartRequest()
	m.SetModel(req.Model)
	m.SetBackend(string(backend))

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}
	ctx, span := s.tracer.StartSpan(ctx, r.Header, &req, body)

	acc := &usageAccumulator{}
	events, closer, err := s.openStream(ctx, backend, &req, body, acc.onUsage)
	if err != nil {
		reqErr := toRequestError(err)
		s.logger.Error("failed to open stream",
			slog.String("model", req.Model), slog.String("backend", string(backend)), slog.String("error", err.Error()))
		m.RecordRequestCompletion(ctx, reqErr.metricsErrorType())
		if span != nil {
			raw, _ := json.Marshal(reqErr.openAIError())
			span.EndSpanOnError(reqErr.status, raw)
		}
		return reqErr
	}
	defer closer.Close()

	streamErr := s.writeStream(ctx, c, events, m, span, acc)
	s.recordUsage(ctx, m, req.Model, backend, acc)
	m.RecordRequestCompletion(ctx, streamErr)
	return nil
}

// openStream starts the upstream call. The returned sequence always ends with the
// [DONE] event unless ctx is done first.
func (s *Server) openStream(ctx context.Context, backend provider.Name, req *openai.ChatCompletionRequest, body []byte,
	onUsage translator.UsageCallback,
) (iter.Seq[translator.Event], io.Closer, error) {
	switch backend {
	case provider.NameOpenAI:
		if s.openai == nil {
			return nil, nil, errMissingAPIKey
		}
		s.logToolMessages(ctx, req)
		rc, err := s.openai.ChatCompletionStream(ctx, body)
		if err != nil {
			return nil, nil, err
		}
		return passthroughEvents(ctx, req.Model, rc, onUsage), rc, nil
	default:
		input, err := translator.TranslateRequest(req)
		if err != nil {
			return nil, nil, err
		}
		s.logToolBlocks(ctx, input)
		es, err := s.bedrock.ConverseStream(ctx, input)
		if err != nil {
			return nil, nil, err
		}
		return translator.TranslateStream(ctx, req.Model, es, onUsage), es, nil
	}
}

// passthroughEvents re-chunks an OpenAI SSE body. The first failure is reported
// as a single error event followed by [DONE], and a body ending without [DONE]
// gets one appended.
func passthroughEvents(ctx context.Context, model string, body io.Reader, onUsage translator.UsageCallback) iter.Seq[translator.Event] {
	return func(yield func(translator.Event) bool) {
		for e, err := range translator.RechunkPassthrough(ctx, model, body, onUsage) {
			if err != nil {
				if yield(translator.ErrorEvent(err)) {
					yield(translator.DoneEvent())
				}
				return
			}
			if !yield(e) {
				return
			}
			if e.IsDone() {
				return
			}
		}
		if ctx.Err() == nil {
			yield(translator.DoneEvent())
		}
	}
}

// writeStream writes events as SSE, flushing after each one. It returns the
// metrics error type of the stream, empty on success.
func (s *Server) writeStream(ctx context.Context, c echo.Context, events iter.Seq[translator.Event],
	m metrics.ChatCompletionMetrics, span tracing.ChatCompletionSpan, acc *usageAccumulator,
) (errorType string) {
	resp := c.Response()
	header := resp.Header()
	header.Set(echo.HeaderContentType, "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	resp.WriteHeader(http.StatusOK)
	resp.Flush()

	var errorEvent []byte
	var done bool
	for e := range events {
		if _, err := e.WriteTo(resp); err != nil {
			s.logger.Debug("client went away", slog.String("error", err.Error()))
			errorType = "client_disconnected"
			break
		}
		resp.Flush()

		switch {
		case e.IsDone():
			done = true
		case e.Chunk != nil:
			if span != nil {
				span.RecordResponseChunk(e.Chunk)
			}
			if hasOutput(e.Chunk) {
				m.RecordTokenLatency(ctx, acc.outputTokens(), false)
			}
		default:
			errorEvent = e.Data
		}
	}
	if !done && errorEvent == nil && errorType == "" && ctx.Err() != nil {
		errorType = "canceled"
		// The client is still there when only the request timeout expired.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && c.Request().Context().Err() == nil {
			timeout := translator.ErrorEvent(&translator.StreamReceiveError{
				Err: fmt.Errorf("request timed out after %s", s.requestTimeout),
			})
			for _, e := range []translator.Event{timeout, translator.DoneEvent()} {
				if _, err := e.WriteTo(resp); err != nil {
					break
				}
				resp.Flush()
			}
			errorEvent = timeout.Data
		}
	}
	if errorEvent != nil {
		var status int
		status, errorType = streamErrorStatus(errorEvent)
		s.logger.Error("stream failed", slog.String("error", gjson.GetBytes(errorEvent, "error.message").String()))
		if span != nil {
			span.EndSpanOnError(status, errorEvent)
		}
		return errorType
	}
	if span != nil {
		span.EndSpan()
	}
	return errorType
}

func hasOutput(chunk *openai.ChatCompletionResponseChunk) bool {
	for i := range chunk.Choices {
		if d := chunk.Choices[i].Delta; d != nil && ((d.Content != nil && *d.Content != "") || len(d.ToolCalls) > 0) {
			return true
		}
	}
	return false
}

// usageAccumulator keeps the latest usage reported by the backend. Usage reports
// are cumulative, so the last one wins.
type usageAccumulator struct {
	usage    openai.Usage
	reported bool
}

func (u *usageAccumulator) onUsage(usage openai.Usage) {
	u.usage = usage
	u.reported = true
}

func (u *usageAccumulator) outputTokens() uint32 {
	return clampUint32(u.usage.CompletionTokens)
}

func (u *usageAccumulator) cachedInputTokens() uint32 {
	if u.usage.PromptTokensDetails == nil {
		return 0
	}
	return clampUint32(u.usage.PromptTokensDetails.CachedTokens)
}

func (s *Server) recordUsage(ctx context.Context, m metrics.ChatCompletionMetrics, model string, backend provider.Name, acc *usageAccumulator) {
	if !acc.reported {
		return
	}
	in, out, total := clampUint32(acc.usage.PromptTokens), clampUint32(acc.usage.CompletionTokens), clampUint32(acc.usage.TotalTokens)
	m.RecordTokenUsage(ctx, in, out)
	m.RecordTokenLatency(ctx, out, true)
	attrs := []slog.Attr{
		slog.String("model", model),
		slog.String("backend", string(backend)),
		slog.Int("prompt_tokens", acc.usage.PromptTokens),
		slog.Int("completion_tokens", acc.usage.CompletionTokens),
		slog.Int("total_tokens", acc.usage.TotalTokens),
	}
	if s.costProgram != nil {
		cost, err := llmcostcel.EvaluateProgram(s.costProgram, model, string(backend), in, acc.cachedInputTokens(), out, total)
		if err != nil {
			s.logger.Error("failed to compute request cost", slog.String("model", model), slog.String("error", err.Error()))
		} else {
			m.RecordRequestCost(ctx, cost)
			attrs = append(attrs, slog.Uint64("cost", cost))
		}
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "usage", attrs...)
}

func clampUint32(v int) uint32 {
	switch {
	case v < 0:
		return 0
	case v > int(^uint32(0)):
		return ^uint32(0)
	default:
		return uint32(v) //nolint:gosec
	}
}

// logToolBlocks logs the tool uses and tool results as sent to Bedrock, with
// the inputs as parsed from the tool call arguments.
func (s *Server) logToolBlocks(ctx context.Context, input *awsbedrock.ConverseInput) {
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for _, msg := range input.Messages {
		for _, block := range msg.Content {
			switch {
			case block.ToolUse != nil:
				s.logger.Debug("tool use", slog.String("id", block.ToolUse.ToolUseID),
					slog.String("name", block.ToolUse.Name), slog.Any("input", block.ToolUse.Input.Value()))
			case block.ToolResult != nil:
				var texts []string
				for _, c := range block.ToolResult.Content {
					if c.Text != nil {
						texts = append(texts, *c.Text)
					}
				}
				s.logger.Debug("tool result", slog.String("tool_use_id", block.ToolResult.ToolUseID), slog.Any("content", texts))
			}
		}
	}
}

// logToolMessages logs the tool calls and tool results of a passthrough request.
func (s *Server) logToolMessages(ctx context.Context, req *openai.ChatCompletionRequest) {
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return
	}
	for i := range req.Messages {
		msg := &req.Messages[i]
		switch msg.Role {
		case openai.ChatMessageRoleTool:
			s.logger.Debug("tool result", slog.String("tool_call_id", msg.ToolCallID), slog.Any("content", msg.Content))
		case openai.ChatMessageRoleAssistant:
			for j := range msg.ToolCalls {
				call := &msg.ToolCalls[j]
				s.logger.Debug("tool call", slog.String("id", call.ID),
					slog.String("name", call.Function.Name), slog.String("arguments", call.Function.Arguments))
			}
		}
	}
}
