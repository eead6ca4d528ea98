// Package anthropic adapts the Anthropic Messages API to the agent's
// streaming contract.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/skilletlabs/skillet/internal/agent"
)

// defaultMaxTokens is used when the request sets no completion cap; the
// Messages API requires one.
const defaultMaxTokens = 8192

// thinkingBudgets maps thinking levels to token budgets. The API floor
// is 1024.
var thinkingBudgets = map[agent.ThinkingLevel]int64{
	agent.ThinkingShort:    1024,
	agent.ThinkingLong:     4096,
	agent.ThinkingExtended: 16384,
}

// Adapter implements agent.Adapter on the Messages API.
type Adapter struct {
	client sdk.Client
	logger *slog.Logger
}

// New creates an adapter. baseURL is optional.
func New(apiKey, baseURL string) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Adapter{
		client: sdk.NewClient(opts...),
		logger: slog.Default().With("component", "adapter", "provider", "anthropic"),
	}
}

// Stream implements agent.Adapter.
func (a *Adapter) Stream(ctx context.Context, req agent.StreamRequest) (<-chan agent.StreamEvent, error) {
	params, err := buildParams(req)
	if err != nil {
		return nil, err
	}

	stream := a.client.Messages.NewStreaming(ctx, *params)
	if err := stream.Err(); err != nil {
		_ = stream.Close()
		if isRetryable(err) {
			return nil, agent.Transient(err)
		}
		return nil, err
	}

	ch := make(chan agent.StreamEvent, 32)
	go a.pump(ctx, stream, ch)
	return ch, nil
}

func buildParams(req agent.StreamRequest) (*sdk.MessageNewParams, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	conversation, system, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := &sdk.MessageNewParams{
		Model:     sdk.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  conversation,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := convertTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}
	if budget, ok := thinkingBudgets[req.ThinkingLevel]; ok {
		if budget >= int64(maxTokens) {
			params.MaxTokens = budget + int64(maxTokens)
		}
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

func (a *Adapter) pump(ctx context.Context, stream *ssestream.Stream[sdk.MessageStreamEventUnion], ch chan<- agent.StreamEvent) {
	defer close(ch)
	defer stream.Close()

	send := func(ev agent.StreamEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case ch <- ev:
			return true
		}
	}

	// Content block index -> open block, so deltas and stops can be
	// attributed and bracketed with start/end events.
	type openBlock struct {
		kind agent.StreamEventType
		id   string
	}
	blocks := make(map[int]openBlock)

	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			switch block := ev.ContentBlock.AsAny().(type) {
			case sdk.ToolUseBlock:
				blocks[int(ev.Index)] = openBlock{kind: agent.StreamToolCallStart, id: block.ID}
				if !send(agent.StreamEvent{
					Type:       agent.StreamToolCallStart,
					ToolCallID: block.ID,
					ToolName:   block.Name,
				}) {
					return
				}
			case sdk.TextBlock:
				blocks[int(ev.Index)] = openBlock{kind: agent.StreamTextStart}
				if !send(agent.StreamEvent{Type: agent.StreamTextStart}) {
					return
				}
			case sdk.ThinkingBlock:
				blocks[int(ev.Index)] = openBlock{kind: agent.StreamThinkingStart}
				if !send(agent.StreamEvent{Type: agent.StreamThinkingStart}) {
					return
				}
			}
		case sdk.ContentBlockDeltaEvent:
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text != "" && !send(agent.StreamEvent{Type: agent.StreamTextDelta, Content: delta.Text}) {
					return
				}
			case sdk.ThinkingDelta:
				if delta.Thinking != "" && !send(agent.StreamEvent{Type: agent.StreamThinkingDelta, Content: delta.Thinking}) {
					return
				}
			case sdk.InputJSONDelta:
				if block, ok := blocks[int(ev.Index)]; ok && block.id != "" && delta.PartialJSON != "" {
					if !send(agent.StreamEvent{
						Type:       agent.StreamToolCallDelta,
						ToolCallID: block.id,
						ArgsDelta:  delta.PartialJSON,
					}) {
						return
					}
				}
			}
		case sdk.ContentBlockStopEvent:
			block, ok := blocks[int(ev.Index)]
			if !ok {
				continue
			}
			delete(blocks, int(ev.Index))
			var end agent.StreamEvent
			switch block.kind {
			case agent.StreamToolCallStart:
				end = agent.StreamEvent{Type: agent.StreamToolCallEnd, ToolCallID: block.id}
			case agent.StreamThinkingStart:
				end = agent.StreamEvent{Type: agent.StreamThinkingEnd}
			default:
				end = agent.StreamEvent{Type: agent.StreamTextEnd}
			}
			if !send(end) {
				return
			}
		case sdk.MessageStopEvent:
			send(agent.StreamEvent{Type: agent.StreamFinish})
			return
		}
	}

	if err := stream.Err(); err != nil {
		if ctx.Err() != nil {
			return
		}
		a.logger.Debug("stream failed", "error", err)
		send(agent.StreamEvent{Type: agent.StreamError, Error: err.Error()})
		return
	}
	send(agent.StreamEvent{Type: agent.StreamFinish})
}

// convertMessages splits history into the system blocks and the
// conversation turns the Messages API expects.
func convertMessages(messages []agent.LLMMessage) ([]sdk.MessageParam, []sdk.TextBlockParam, error) {
	var system []sdk.TextBlockParam
	conversation := make([]sdk.MessageParam, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case agent.RoleSystem:
			if m.Content != "" {
				system = append(system, sdk.TextBlockParam{Text: m.Content})
			}
		case agent.RoleAssistant:
			blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, sdk.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				blocks = append(blocks, sdk.NewToolUseBlock(call.ID, decodeArgs(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
			}
		case agent.RoleTool:
			conversation = append(conversation, sdk.NewUserMessage(
				sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			conversation = append(conversation, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}

	if len(conversation) == 0 {
		return nil, nil, errors.New("at least one conversation message is required")
	}
	return conversation, system, nil
}

func decodeArgs(arguments string) any {
	if arguments == "" {
		return map[string]any{}
	}
	var value any
	if err := json.Unmarshal([]byte(arguments), &value); err != nil {
		return map[string]any{"raw": arguments}
	}
	return value
}

func convertTools(specs []agent.ToolSpec) ([]sdk.ToolUnionParam, error) {
	out := make([]sdk.ToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		var schema map[string]any
		if len(spec.Schema) > 0 {
			if err := json.Unmarshal(spec.Schema, &schema); err != nil {
				return nil, errors.New("tool " + spec.Name + ": invalid schema")
			}
		}
		tool := sdk.ToolUnionParamOfTool(sdk.ToolInputSchemaParam{ExtraFields: schema}, spec.Name)
		if tool.OfTool != nil {
			tool.OfTool.Description = sdk.String(spec.Description)
		}
		out = append(out, tool)
	}
	return out, nil
}

// isRetryable classifies transport failures: rate limits, overloaded,
// and server errors retry; auth and validation failures do not.
func isRetryable(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode == 529 || apiErr.StatusCode >= 500
	}
	return false
}
