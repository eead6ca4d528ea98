package agent

import (
	"encoding/json"
	"fmt"
	"io"
)

// StreamEventType identifies a chunk in an adapter stream.
type StreamEventType string

const (
	StreamTextStart     StreamEventType = "text_start"
	StreamTextDelta     StreamEventType = "text_delta"
	StreamTextEnd       StreamEventType = "text_end"
	StreamThinkingStart StreamEventType = "thinking_start"
	StreamThinkingDelta StreamEventType = "thinking_delta"
	StreamThinkingEnd   StreamEventType = "thinking_end"
	StreamToolCallStart StreamEventType = "tool_call_start"
	StreamToolCallDelta StreamEventType = "tool_call_delta"
	StreamToolCallEnd   StreamEventType = "tool_call_end"
	StreamToolExecution StreamEventType = "tool_execution_update"
	StreamToolResult    StreamEventType = "tool_result"
	StreamTurnStart     StreamEventType = "turn_start"
	StreamTurnEnd       StreamEventType = "turn_end"
	StreamFinish        StreamEventType = "finish"
	StreamDone          StreamEventType = "done"
	StreamError         StreamEventType = "error"
)

// StreamEvent is one chunk of a streamed model turn. Tool-call ids are
// stable across the start/delta/end events of one call; turn boundary
// events carry the turn number.
type StreamEvent struct {
	Type       StreamEventType `json:"type"`
	Content    string          `json:"content,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ArgsDelta  string          `json:"args_delta,omitempty"`
	Turn       int             `json:"turn,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// SSEDone is the sentinel line terminating a server-sent event stream.
const SSEDone = "data: [DONE]\n\n"

// WriteSSE encodes the event as one server-sent-events frame.
func WriteSSE(w io.Writer, ev StreamEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode stream event: %w", err)
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	return err
}

// WriteSSEDone terminates a server-sent event stream.
func WriteSSEDone(w io.Writer) error {
	_, err := io.WriteString(w, SSEDone)
	return err
}

// turnAccumulator folds a stream of adapter events into one assistant
// turn: text, thinking, and completed tool calls.
type turnAccumulator struct {
	text     []byte
	thinking []byte
	order    []string
	calls    map[string]*ToolCall
	finished bool
	err      string
}

func newTurnAccumulator() *turnAccumulator {
	return &turnAccumulator{calls: make(map[string]*ToolCall)}
}

// Add folds one stream event into the accumulator.
func (a *turnAccumulator) Add(ev StreamEvent) {
	switch ev.Type {
	case StreamTextDelta:
		a.text = append(a.text, ev.Content...)
	case StreamThinkingDelta:
		a.thinking = append(a.thinking, ev.Content...)
	case StreamToolCallStart:
		if _, ok := a.calls[ev.ToolCallID]; !ok {
			a.calls[ev.ToolCallID] = &ToolCall{ID: ev.ToolCallID, Name: ev.ToolName}
			a.order = append(a.order, ev.ToolCallID)
		}
	case StreamToolCallDelta:
		if call, ok := a.calls[ev.ToolCallID]; ok {
			call.Arguments += ev.ArgsDelta
		}
	case StreamToolCallEnd:
		// Id stability is the adapter's contract; nothing to do here.
	case StreamFinish:
		a.finished = true
	case StreamError:
		a.err = ev.Error
	}
}

// Text returns the accumulated assistant text.
func (a *turnAccumulator) Text() string { return string(a.text) }

// Thinking returns the accumulated thinking text.
func (a *turnAccumulator) Thinking() string { return string(a.thinking) }

// ToolCalls returns completed calls in the order they started.
func (a *turnAccumulator) ToolCalls() []ToolCall {
	out := make([]ToolCall, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, *a.calls[id])
	}
	return out
}
