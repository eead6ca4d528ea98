package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// EventName identifies a lifecycle event. The set is closed; subscribers
// registering for other names simply never fire.
type EventName string

const (
	EventAgentStart       EventName = "agent_start"
	EventAgentEnd         EventName = "agent_end"
	EventTurnStart        EventName = "turn_start"
	EventTurnEnd          EventName = "turn_end"
	EventBeforeToolCall   EventName = "before_tool_call"
	EventAfterToolResult  EventName = "after_tool_result"
	EventContextTransform EventName = "context_transform"
	EventInput            EventName = "input"
	EventToolExecUpdate   EventName = "tool_execution_update"
	EventSessionStart     EventName = "session_start"
	EventSessionEnd       EventName = "session_end"
	EventModelChange      EventName = "model_change"
	EventCompaction       EventName = "compaction"
)

// Event is the payload delivered to subscribers. Fields are populated
// per event name; unused fields stay zero.
type Event struct {
	Name EventName

	// Message carries the user input for input events and steering.
	Message string

	// Messages carries the history for context_transform.
	Messages []Message

	// Turn is the current inner-loop turn number.
	Turn int

	// ToolName, ToolCallID, and ToolArgs describe the call for
	// before_tool_call and after_tool_result.
	ToolName   string
	ToolCallID string
	ToolArgs   string

	// Result carries the tool output for after_tool_result and streamed
	// chunks for tool_execution_update.
	Result string

	// FinishReason is set on agent_end.
	FinishReason FinishReason

	// ChildID tags events re-emitted from a forked child runner.
	ChildID string

	// Data carries event-specific extras (compaction stats, model ids).
	Data map[string]any
}

// HandlerResult is what a subscriber may return to intercept an event.
// Nil (or a zero value) means observe only.
type HandlerResult struct {
	// Block halts a before_tool_call; Reason becomes the synthetic
	// tool result.
	Block  bool
	Reason string

	// Result replaces the tool output for after_tool_result. Replacements
	// chain across handlers.
	Result *string

	// Messages replaces the history for context_transform. Replacements
	// chain across handlers.
	Messages []Message

	// Handled short-circuits an input event; Response is returned to the
	// caller in place of a model turn.
	Handled  bool
	Response string
}

// Handler processes an event. Returning an error logs it; it never stops
// emission.
type Handler func(ctx context.Context, ev *Event) (*HandlerResult, error)

type subscription struct {
	id       string
	name     EventName
	handler  Handler
	priority int
	source   string
	seq      int
}

// Bus dispatches lifecycle events to subscribers in descending priority
// order, ties resolved by registration order. The subscriber list is
// copied under lock before dispatch so registration never races emission.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventName][]*subscription
	byID   map[string]*subscription
	seq    int
	logger *slog.Logger
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[EventName][]*subscription),
		byID:   make(map[string]*subscription),
		logger: slog.Default().With("component", "events"),
	}
}

// On subscribes a handler. Higher priority runs earlier; ties run in
// registration order. source is a free-form owner label for bulk removal
// via OffSource. The returned function unsubscribes; it is idempotent.
func (b *Bus) On(name EventName, handler Handler, priority int, source string) func() {
	sub := &subscription{
		id:       uuid.NewString(),
		name:     name,
		handler:  handler,
		priority: priority,
		source:   source,
	}

	b.mu.Lock()
	b.seq++
	sub.seq = b.seq
	b.subs[name] = append(b.subs[name], sub)
	sort.SliceStable(b.subs[name], func(i, j int) bool {
		si, sj := b.subs[name][i], b.subs[name][j]
		if si.priority != sj.priority {
			return si.priority > sj.priority
		}
		return si.seq < sj.seq
	})
	b.byID[sub.id] = sub
	b.mu.Unlock()

	return func() { b.off(sub.id) }
}

func (b *Bus) off(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.byID[id]
	if !ok {
		return
	}
	delete(b.byID, id)
	list := b.subs[sub.name]
	for i, s := range list {
		if s.id == id {
			b.subs[sub.name] = append(list[:i], list[i+1:]...)
			break
		}
	}
}

// OffSource removes every subscription registered under the source label.
func (b *Bus) OffSource(source string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for name, list := range b.subs {
		kept := list[:0]
		for _, s := range list {
			if s.source == source {
				delete(b.byID, s.id)
				removed++
				continue
			}
			kept = append(kept, s)
		}
		b.subs[name] = kept
	}
	return removed
}

// SubscriberCount returns the number of handlers for an event name.
func (b *Bus) SubscriberCount(name EventName) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[name])
}

// EmitResult aggregates handler returns according to the per-event rules.
type EmitResult struct {
	// Blocked and BlockReason aggregate before_tool_call.
	Blocked     bool
	BlockReason string

	// Result is the chained replacement for after_tool_result, nil when
	// no handler replaced it.
	Result *string

	// Messages is the chained replacement for context_transform, nil
	// when untouched.
	Messages []Message

	// Handled and Response aggregate input short-circuits.
	Handled  bool
	Response string
}

// Emit dispatches the event. Handler errors and panics are logged under
// the subscriber's source tag and never abort emission. Aggregation:
// before_tool_call blocks stick (later handlers still observe but cannot
// unblock), after_tool_result and context_transform replacements chain,
// and the first input handler returning handled stops dispatch.
func (b *Bus) Emit(ctx context.Context, ev *Event) *EmitResult {
	b.mu.RLock()
	list := b.subs[ev.Name]
	snapshot := make([]*subscription, len(list))
	copy(snapshot, list)
	b.mu.RUnlock()

	agg := &EmitResult{}
	for _, sub := range snapshot {
		res, err := b.call(ctx, sub, ev)
		if err != nil {
			b.logger.Warn("event handler error",
				"event", ev.Name, "source", sub.source, "error", err)
			continue
		}
		if res == nil {
			continue
		}

		switch ev.Name {
		case EventBeforeToolCall:
			if res.Block && !agg.Blocked {
				agg.Blocked = true
				agg.BlockReason = res.Reason
			}
		case EventAfterToolResult:
			if res.Result != nil {
				agg.Result = res.Result
				ev.Result = *res.Result
			}
		case EventContextTransform:
			if res.Messages != nil {
				agg.Messages = res.Messages
				ev.Messages = res.Messages
			}
		case EventInput:
			if res.Handled {
				agg.Handled = true
				agg.Response = res.Response
				return agg
			}
		}
	}
	return agg
}

func (b *Bus) call(ctx context.Context, sub *subscription, ev *Event) (res *HandlerResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("handler panic: %v", p)
		}
	}()
	return sub.handler(ctx, ev)
}
