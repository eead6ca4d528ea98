package anthropic

import (
	"encoding/json"
	"testing"

	"github.com/skilletlabs/skillet/internal/agent"
)

func TestConvertMessagesSplitsSystem(t *testing.T) {
	msgs := []agent.LLMMessage{
		{Role: agent.RoleSystem, Content: "be helpful"},
		{Role: agent.RoleUser, Content: "hi"},
		{Role: agent.RoleAssistant, Content: "checking", ToolCalls: []agent.ToolCall{
			{ID: "c1", Name: "execute", Arguments: `{"command":"date"}`},
		}},
		{Role: agent.RoleTool, ToolCallID: "c1", Content: "2025"},
	}

	conversation, system, err := convertMessages(msgs)
	if err != nil {
		t.Fatal(err)
	}
	if len(system) != 1 || system[0].Text != "be helpful" {
		t.Errorf("system prompt not extracted: %+v", system)
	}
	// System messages never appear in the turn list.
	if len(conversation) != 3 {
		t.Fatalf("expected 3 conversation turns, got %d", len(conversation))
	}
}

func TestConvertMessagesRequiresConversation(t *testing.T) {
	_, _, err := convertMessages([]agent.LLMMessage{
		{Role: agent.RoleSystem, Content: "only system"},
	})
	if err == nil {
		t.Error("expected error for system-only history")
	}
}

func TestDecodeArgs(t *testing.T) {
	if v, ok := decodeArgs("").(map[string]any); !ok || len(v) != 0 {
		t.Errorf("empty arguments should decode to an empty object, got %#v", v)
	}
	v, ok := decodeArgs(`{"command":"date"}`).(map[string]any)
	if !ok || v["command"] != "date" {
		t.Errorf("valid arguments should decode, got %#v", v)
	}
	// Malformed argument JSON is preserved rather than dropped.
	raw, ok := decodeArgs("not json").(map[string]any)
	if !ok || raw["raw"] != "not json" {
		t.Errorf("malformed arguments should be wrapped, got %#v", raw)
	}
}

func TestConvertTools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}}}`)
	out, err := convertTools([]agent.ToolSpec{
		{Name: "execute", Description: "run a command", Schema: schema},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].OfTool == nil {
		t.Fatalf("expected 1 tool, got %+v", out)
	}
	if out[0].OfTool.Name != "execute" {
		t.Errorf("unexpected tool name: %q", out[0].OfTool.Name)
	}
	if _, ok := out[0].OfTool.InputSchema.ExtraFields["properties"]; !ok {
		t.Error("schema properties not carried into input schema")
	}
}

func TestConvertToolsRejectsBadSchema(t *testing.T) {
	_, err := convertTools([]agent.ToolSpec{
		{Name: "broken", Schema: json.RawMessage(`{not json`)},
	})
	if err == nil {
		t.Error("expected error for malformed schema")
	}
}

func TestBuildParamsThinkingBudget(t *testing.T) {
	req := agent.StreamRequest{
		Model:         "claude-sonnet-4-5",
		Messages:      []agent.LLMMessage{{Role: agent.RoleUser, Content: "hi"}},
		ThinkingLevel: agent.ThinkingExtended,
		MaxTokens:     1000,
	}
	params, err := buildParams(req)
	if err != nil {
		t.Fatal(err)
	}
	// The completion cap must exceed the thinking budget.
	if params.MaxTokens <= thinkingBudgets[agent.ThinkingExtended] {
		t.Errorf("max tokens %d must exceed thinking budget", params.MaxTokens)
	}
}

func TestBuildParamsDefaults(t *testing.T) {
	params, err := buildParams(agent.StreamRequest{
		Model:    "claude-sonnet-4-5",
		Messages: []agent.LLMMessage{{Role: agent.RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if params.MaxTokens != defaultMaxTokens {
		t.Errorf("expected default max tokens, got %d", params.MaxTokens)
	}
	if len(params.Tools) != 0 {
		t.Error("no tools requested, none should be set")
	}
}
