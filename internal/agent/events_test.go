package agent

import (
	"context"
	"errors"
	"testing"
)

func observe(log *[]string, label string) Handler {
	return func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		*log = append(*log, label)
		return nil, nil
	}
}

func TestBusPriorityOrdering(t *testing.T) {
	bus := NewBus()
	var log []string

	bus.On(EventTurnStart, observe(&log, "low"), 0, "t")
	bus.On(EventTurnStart, observe(&log, "high"), 10, "t")
	bus.On(EventTurnStart, observe(&log, "low2"), 0, "t")

	bus.Emit(context.Background(), &Event{Name: EventTurnStart})

	want := []string{"high", "low", "low2"}
	if len(log) != len(want) {
		t.Fatalf("expected %d invocations, got %d", len(want), len(log))
	}
	for i := range want {
		if log[i] != want[i] {
			t.Errorf("position %d: got %q, want %q (ties must keep registration order)", i, log[i], want[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	var calls int
	off := bus.On(EventTurnEnd, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		calls++
		return nil, nil
	}, 0, "t")

	bus.Emit(context.Background(), &Event{Name: EventTurnEnd})
	off()
	off() // idempotent
	bus.Emit(context.Background(), &Event{Name: EventTurnEnd})

	if calls != 1 {
		t.Errorf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestBusOffSource(t *testing.T) {
	bus := NewBus()
	noop := func(ctx context.Context, ev *Event) (*HandlerResult, error) { return nil, nil }
	bus.On(EventTurnStart, noop, 0, "plugin-a")
	bus.On(EventTurnEnd, noop, 0, "plugin-a")
	bus.On(EventTurnStart, noop, 0, "plugin-b")

	if removed := bus.OffSource("plugin-a"); removed != 2 {
		t.Errorf("expected 2 removed, got %d", removed)
	}
	if bus.SubscriberCount(EventTurnStart) != 1 {
		t.Error("plugin-b subscription should survive")
	}
	if bus.SubscriberCount(EventTurnEnd) != 0 {
		t.Error("plugin-a turn_end subscription should be gone")
	}
}

func TestBusBlockSticks(t *testing.T) {
	bus := NewBus()
	var laterRan bool

	bus.On(EventBeforeToolCall, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		return &HandlerResult{Block: true, Reason: "dangerous"}, nil
	}, 10, "guard")
	bus.On(EventBeforeToolCall, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		laterRan = true
		// A later handler cannot unblock.
		return &HandlerResult{Block: false}, nil
	}, 0, "observer")

	res := bus.Emit(context.Background(), &Event{Name: EventBeforeToolCall, ToolName: "execute"})
	if !res.Blocked || res.BlockReason != "dangerous" {
		t.Fatalf("expected block to stick: %+v", res)
	}
	if !laterRan {
		t.Error("later handlers must still observe a blocked call")
	}
}

func TestBusResultChaining(t *testing.T) {
	bus := NewBus()
	first := "first"
	bus.On(EventAfterToolResult, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		out := ev.Result + "+a"
		return &HandlerResult{Result: &out}, nil
	}, 10, "a")
	bus.On(EventAfterToolResult, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		out := ev.Result + "+b"
		return &HandlerResult{Result: &out}, nil
	}, 0, "b")

	res := bus.Emit(context.Background(), &Event{Name: EventAfterToolResult, Result: first})
	if res.Result == nil || *res.Result != "first+a+b" {
		t.Errorf("expected chained replacement, got %v", res.Result)
	}
}

func TestBusContextTransformChaining(t *testing.T) {
	bus := NewBus()
	bus.On(EventContextTransform, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		return &HandlerResult{Messages: append(ev.Messages, UserMessage("from-a"))}, nil
	}, 10, "a")
	bus.On(EventContextTransform, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		return &HandlerResult{Messages: append(ev.Messages, UserMessage("from-b"))}, nil
	}, 0, "b")

	res := bus.Emit(context.Background(), &Event{
		Name:     EventContextTransform,
		Messages: []Message{UserMessage("base")},
	})
	if len(res.Messages) != 3 {
		t.Fatalf("expected chained transform to see prior output, got %d messages", len(res.Messages))
	}
	if res.Messages[2].Content != "from-b" {
		t.Errorf("unexpected final message: %q", res.Messages[2].Content)
	}
}

func TestBusInputShortCircuit(t *testing.T) {
	bus := NewBus()
	var downstreamRan bool
	bus.On(EventInput, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		return &HandlerResult{Handled: true, Response: "intercepted"}, nil
	}, 10, "interceptor")
	bus.On(EventInput, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		downstreamRan = true
		return nil, nil
	}, 0, "downstream")

	res := bus.Emit(context.Background(), &Event{Name: EventInput, Message: "hi"})
	if !res.Handled || res.Response != "intercepted" {
		t.Fatalf("expected short-circuit: %+v", res)
	}
	if downstreamRan {
		t.Error("no downstream handler may run after a short-circuit")
	}
}

func TestBusSwallowsHandlerFailures(t *testing.T) {
	bus := NewBus()
	var ran bool
	bus.On(EventTurnStart, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		return nil, errors.New("boom")
	}, 20, "bad")
	bus.On(EventTurnStart, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		panic("worse")
	}, 10, "worse")
	bus.On(EventTurnStart, func(ctx context.Context, ev *Event) (*HandlerResult, error) {
		ran = true
		return nil, nil
	}, 0, "good")

	bus.Emit(context.Background(), &Event{Name: EventTurnStart})
	if !ran {
		t.Error("handler failures must not abort emission")
	}
}
