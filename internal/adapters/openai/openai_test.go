package openai

import (
	"encoding/json"
	"errors"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/skilletlabs/skillet/internal/agent"
)

func TestConvertMessages(t *testing.T) {
	msgs := []agent.LLMMessage{
		{Role: agent.RoleSystem, Content: "be helpful"},
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleAssistant, Content: "", ToolCalls: []agent.ToolCall{
			{ID: "c1", Name: "execute", Arguments: `{"command":"date"}`},
		}},
		{Role: agent.RoleTool, ToolCallID: "c1", Content: "2025"},
	}

	out := convertMessages(msgs)
	if len(out) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(out))
	}
	if out[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("expected system role, got %q", out[0].Role)
	}
	if out[1].Role != openai.ChatMessageRoleUser {
		t.Errorf("expected user role, got %q", out[1].Role)
	}
	if len(out[2].ToolCalls) != 1 || out[2].ToolCalls[0].ID != "c1" {
		t.Errorf("tool calls not carried: %+v", out[2].ToolCalls)
	}
	if out[2].ToolCalls[0].Function.Name != "execute" {
		t.Errorf("unexpected function name: %q", out[2].ToolCalls[0].Function.Name)
	}
	if out[3].Role != openai.ChatMessageRoleTool || out[3].ToolCallID != "c1" {
		t.Errorf("tool result not mapped: %+v", out[3])
	}
}

func TestConvertTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`)
	out := convertTools([]agent.ToolSpec{
		{Name: "execute", Description: "run a command", Schema: schema},
	})
	if len(out) != 1 {
		t.Fatalf("expected 1 tool, got %d", len(out))
	}
	if out[0].Type != openai.ToolTypeFunction {
		t.Errorf("unexpected tool type: %q", out[0].Type)
	}
	if out[0].Function.Name != "execute" || out[0].Function.Description != "run a command" {
		t.Errorf("unexpected function definition: %+v", out[0].Function)
	}
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: 429}, true},
		{"server error", &openai.APIError{HTTPStatusCode: 503}, true},
		{"unauthorized", &openai.APIError{HTTPStatusCode: 401}, false},
		{"bad request", &openai.RequestError{HTTPStatusCode: 400, Err: errors.New("bad")}, false},
		{"request server error", &openai.RequestError{HTTPStatusCode: 500, Err: errors.New("boom")}, true},
		{"plain error", errors.New("nope"), false},
	}
	for _, tc := range cases {
		if got := isRetryable(tc.err); got != tc.want {
			t.Errorf("%s: isRetryable = %v, want %v", tc.name, got, tc.want)
		}
	}
}
