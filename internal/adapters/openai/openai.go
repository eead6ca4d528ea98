// Package openai adapts OpenAI-compatible chat completion APIs to the
// agent's streaming contract. Any endpoint speaking this protocol works
// via a custom base URL.
package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sort"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skilletlabs/skillet/internal/agent"
)

// Adapter implements agent.Adapter on the chat completions API.
type Adapter struct {
	client *openai.Client
	logger *slog.Logger
}

// New creates an adapter. baseURL is optional and supports compatible
// providers (Ollama, OpenRouter, vLLM).
func New(apiKey, baseURL string) *Adapter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Adapter{
		client: openai.NewClientWithConfig(cfg),
		logger: slog.Default().With("component", "adapter", "provider", "openai"),
	}
}

// Stream implements agent.Adapter.
func (a *Adapter) Stream(ctx context.Context, req agent.StreamRequest) (<-chan agent.StreamEvent, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: convertMessages(req.Messages),
		Stream:   true,
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = convertTools(req.Tools)
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		if isRetryable(err) {
			return nil, agent.Transient(err)
		}
		return nil, err
	}

	ch := make(chan agent.StreamEvent, 32)
	go a.pump(ctx, stream, ch)
	return ch, nil
}

type callState struct {
	id      string
	name    string
	started bool
}

func (a *Adapter) pump(ctx context.Context, stream *openai.ChatCompletionStream, ch chan<- agent.StreamEvent) {
	defer close(ch)
	defer stream.Close()

	calls := make(map[int]*callState)

	send := func(ev agent.StreamEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case ch <- ev:
			return true
		}
	}

	// The chat completions stream has no block boundaries; text_start
	// and text_end are synthesized around the content delta run.
	textOpen := false
	closeText := func() bool {
		if !textOpen {
			return true
		}
		textOpen = false
		return send(agent.StreamEvent{Type: agent.StreamTextEnd})
	}

	closeCalls := func() bool {
		indexes := make([]int, 0, len(calls))
		for idx := range calls {
			indexes = append(indexes, idx)
		}
		sort.Ints(indexes)
		for _, idx := range indexes {
			state := calls[idx]
			if state.started {
				if !send(agent.StreamEvent{Type: agent.StreamToolCallEnd, ToolCallID: state.id}) {
					return false
				}
			}
		}
		return true
	}

	for {
		response, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if closeText() && closeCalls() {
					send(agent.StreamEvent{Type: agent.StreamFinish})
				}
				return
			}
			if ctx.Err() != nil {
				return
			}
			a.logger.Debug("stream receive failed", "error", err)
			send(agent.StreamEvent{Type: agent.StreamError, Error: err.Error()})
			return
		}
		if len(response.Choices) == 0 {
			continue
		}
		delta := response.Choices[0].Delta

		if delta.Content != "" {
			if !textOpen {
				textOpen = true
				if !send(agent.StreamEvent{Type: agent.StreamTextStart}) {
					return
				}
			}
			if !send(agent.StreamEvent{Type: agent.StreamTextDelta, Content: delta.Content}) {
				return
			}
		}

		if len(delta.ToolCalls) > 0 && !closeText() {
			return
		}
		for _, tc := range delta.ToolCalls {
			index := 0
			if tc.Index != nil {
				index = *tc.Index
			}
			state := calls[index]
			if state == nil {
				state = &callState{}
				calls[index] = state
			}
			if tc.ID != "" {
				state.id = tc.ID
			}
			if tc.Function.Name != "" {
				state.name = tc.Function.Name
			}
			if !state.started && state.id != "" && state.name != "" {
				state.started = true
				if !send(agent.StreamEvent{
					Type:       agent.StreamToolCallStart,
					ToolCallID: state.id,
					ToolName:   state.name,
				}) {
					return
				}
			}
			if tc.Function.Arguments != "" && state.started {
				if !send(agent.StreamEvent{
					Type:       agent.StreamToolCallDelta,
					ToolCallID: state.id,
					ArgsDelta:  tc.Function.Arguments,
				}) {
					return
				}
			}
		}

		if response.Choices[0].FinishReason == openai.FinishReasonToolCalls {
			if !closeText() || !closeCalls() {
				return
			}
			calls = make(map[int]*callState)
		}
	}
}

func convertMessages(messages []agent.LLMMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := openai.ChatCompletionMessage{Content: m.Content}
		switch m.Role {
		case agent.RoleSystem:
			msg.Role = openai.ChatMessageRoleSystem
		case agent.RoleAssistant:
			msg.Role = openai.ChatMessageRoleAssistant
			for _, call := range m.ToolCalls {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: call.Arguments,
					},
				})
			}
		case agent.RoleTool:
			msg.Role = openai.ChatMessageRoleTool
			msg.ToolCallID = m.ToolCallID
		default:
			msg.Role = openai.ChatMessageRoleUser
		}
		out = append(out, msg)
	}
	return out
}

func convertTools(specs []agent.ToolSpec) []openai.Tool {
	out := make([]openai.Tool, 0, len(specs))
	for _, spec := range specs {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        spec.Name,
				Description: spec.Description,
				Parameters:  spec.Schema,
			},
		})
	}
	return out
}

// isRetryable classifies transport-level failures: rate limits, server
// errors, and network resets. Auth and bad-request failures are not.
func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == 429 || reqErr.HTTPStatusCode >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
