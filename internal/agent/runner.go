package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/skilletlabs/skillet/internal/exec"
	"github.com/skilletlabs/skillet/internal/skills"
)

// DefaultMaxTurns caps the inner loop when the config sets none.
const DefaultMaxTurns = 50

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	Model         string
	MaxTurns      int
	Temperature   float32
	MaxTokens     int
	ThinkingLevel ThinkingLevel

	// DisableTools skips tool dispatch entirely: the adapter is offered
	// no tools and any proposed calls are ignored.
	DisableTools bool

	// SkillPromptBudget, when positive, swaps the full skill prompt for
	// the budget-capped metadata projection; skill bodies are then
	// fetched on demand through the skill tool.
	SkillPromptBudget int

	// SystemPrompt is prepended to fresh histories before the skill
	// prompt is appended.
	SystemPrompt string
}

// Runner drives the conversation loop for one session. A runner accepts
// one Chat at a time; a second concurrent entry fails with ErrBusy.
// Steer, FollowUp, and Abort are safe to call from other goroutines.
type Runner struct {
	engine  *skills.Engine
	adapter Adapter
	bus     *Bus
	ctx     *ContextManager
	tools   *Registry
	runtime *exec.Runtime
	config  RunnerConfig
	logger  *slog.Logger

	mu      sync.Mutex
	history []Message
	busy    bool

	turn         int
	model        string
	allowedTools []string

	abortMu     sync.Mutex
	abortCancel context.CancelFunc

	steering  messageQueue
	followUps messageQueue

	// childID tags events emitted by a forked child; empty on the parent.
	childID string

	// onStream, when set, receives every stream event of the session.
	onStream func(StreamEvent)
}

// NewRunner wires a runner. The context manager and tool registry are
// required; pass a registry with no tools to run without any.
func NewRunner(engine *skills.Engine, adapter Adapter, bus *Bus, cm *ContextManager, tools *Registry, runtime *exec.Runtime, cfg RunnerConfig) *Runner {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	r := &Runner{
		engine:  engine,
		adapter: adapter,
		bus:     bus,
		ctx:     cm,
		tools:   tools,
		runtime: runtime,
		config:  cfg,
		model:   cfg.Model,
		logger:  slog.Default().With("component", "agent"),
	}
	if tools != nil {
		tools.Register(&SkillTool{Resolve: r.resolveSkill})
	}
	return r
}

// OnStream registers a sink for the session's stream events. Must be set
// before Chat.
func (r *Runner) OnStream(fn func(StreamEvent)) { r.onStream = fn }

// History returns a copy of the conversation history.
func (r *Runner) History() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

// Reset clears the conversation history and any queued messages so the
// runner starts fresh on the next Chat. Rejected while a chat is in
// flight.
func (r *Runner) Reset() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.busy {
		return ErrBusy
	}
	r.history = nil
	r.steering.Drain()
	r.followUps.Drain()
	return nil
}

// Steer enqueues a user message consumed between tool calls of the
// active turn; remaining tool calls in that turn are cancelled.
func (r *Runner) Steer(message string) { r.steering.Push(message) }

// FollowUp enqueues a message processed after the current inner loop
// exits.
func (r *Runner) FollowUp(message string) { r.followUps.Push(message) }

// Abort cancels the in-flight chat: the adapter stream is closed, active
// subprocesses get graceful termination, and the loop exits at its next
// check. Idempotent.
func (r *Runner) Abort() {
	r.abortMu.Lock()
	cancel := r.abortCancel
	r.abortMu.Unlock()
	if cancel != nil {
		cancel()
	}
	if r.runtime != nil {
		r.runtime.KillAll()
	}
}

// Chat runs one turn of the outer loop and returns the final assistant
// message. Rejected with ErrBusy while another Chat is in flight.
func (r *Runner) Chat(ctx context.Context, message string) (string, error) {
	r.mu.Lock()
	if r.busy {
		r.mu.Unlock()
		return "", ErrBusy
	}
	r.busy = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.busy = false
		r.mu.Unlock()
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.abortMu.Lock()
	r.abortCancel = cancel
	r.abortMu.Unlock()
	defer func() {
		r.abortMu.Lock()
		r.abortCancel = nil
		r.abortMu.Unlock()
	}()

	return r.chat(runCtx, message, true)
}

// chat implements one outer-loop entry. Follow-up recursion passes
// emitLifecycle=false so only the outermost call brackets the
// conversation with agent_start and agent_end.
func (r *Runner) chat(ctx context.Context, message string, emitLifecycle bool) (string, error) {
	if res := r.bus.Emit(ctx, &Event{Name: EventInput, Message: message, ChildID: r.childID}); res.Handled {
		return res.Response, nil
	}

	r.seedSystem(ctx)

	if name, args, ok := parseSlash(message); ok {
		return r.slashInvoke(ctx, name, args, emitLifecycle)
	}

	r.append(UserMessage(message))

	if emitLifecycle {
		r.bus.Emit(ctx, &Event{Name: EventAgentStart, Message: message, ChildID: r.childID})
	}

	reason, err := r.innerLoop(ctx)

	for {
		followUp, ok := r.followUps.Pop()
		if !ok {
			break
		}
		if _, ferr := r.chat(ctx, followUp, false); ferr != nil {
			r.logger.Warn("follow-up failed", "error", ferr)
			break
		}
	}

	if emitLifecycle {
		r.bus.Emit(ctx, &Event{Name: EventAgentEnd, FinishReason: reason, ChildID: r.childID})
		r.emitStream(StreamEvent{Type: StreamDone})
	}
	if err != nil {
		return "", err
	}
	return r.lastAssistant(), nil
}

// seedSystem initializes a fresh history with the configured system
// prompt plus the current skill metadata prompt. The snapshot captured
// here serves the whole conversation; reloads apply to the next one.
func (r *Runner) seedSystem(ctx context.Context) {
	r.mu.Lock()
	empty := len(r.history) == 0
	r.mu.Unlock()
	if !empty {
		return
	}

	prompt := r.config.SystemPrompt
	if r.engine != nil {
		snap, err := r.engine.Snapshot(ctx)
		if err != nil {
			r.logger.Warn("skill snapshot failed", "error", err)
		} else {
			sp := snap.Prompt()
			if r.config.SkillPromptBudget > 0 {
				sp = snap.MetadataPrompt(r.config.SkillPromptBudget)
			}
			if sp != "" {
				if prompt != "" {
					prompt += "\n\n"
				}
				prompt += sp
			}
		}
	}
	if prompt != "" {
		r.append(SystemMessage(prompt))
	}
}

// innerLoop iterates model turns until natural completion, the turn cap,
// abort, or an unrecoverable adapter error.
func (r *Runner) innerLoop(ctx context.Context) (FinishReason, error) {
	r.turn = 0
	for {
		if ctx.Err() != nil {
			return FinishAborted, ErrAborted
		}
		if r.turn >= r.config.MaxTurns {
			// A steer that never got consumed becomes a follow-up so
			// it is not silently dropped.
			for _, pending := range r.steering.Drain() {
				r.followUps.Push(pending)
			}
			return FinishMaxTurns, nil
		}

		r.turn++
		r.bus.Emit(ctx, &Event{Name: EventTurnStart, Turn: r.turn, ChildID: r.childID})
		r.emitStream(StreamEvent{Type: StreamTurnStart, Turn: r.turn})

		if r.ctx != nil && r.ctx.ShouldCompact(r.snapshotHistory()) {
			r.compact(ctx)
		}

		history := r.snapshotHistory()
		if res := r.bus.Emit(ctx, &Event{Name: EventContextTransform, Messages: history, ChildID: r.childID}); res.Messages != nil {
			r.setHistory(res.Messages)
			history = res.Messages
		}

		acc, err := r.streamTurn(ctx, history)
		if err != nil {
			if ctx.Err() != nil {
				return FinishAborted, ErrAborted
			}
			r.emitStream(StreamEvent{Type: StreamError, Error: err.Error()})
			return FinishError, fmt.Errorf("adapter stream: %w", err)
		}
		if ctx.Err() != nil {
			// Partial assistant output is discarded on abort.
			return FinishAborted, ErrAborted
		}
		if acc.err != "" {
			return FinishError, fmt.Errorf("adapter stream: %s", acc.err)
		}

		if thinking := acc.Thinking(); thinking != "" {
			r.append(Message{Role: RoleThinking, Content: thinking})
		}

		calls := acc.ToolCalls()
		if r.config.DisableTools {
			calls = nil
		}
		r.append(AssistantMessage(acc.Text(), calls))
		r.bus.Emit(ctx, &Event{Name: EventTurnEnd, Turn: r.turn, ChildID: r.childID})
		r.emitStream(StreamEvent{Type: StreamTurnEnd, Turn: r.turn})

		if len(calls) == 0 {
			return FinishComplete, nil
		}

		if reason, err := r.dispatchCalls(ctx, calls); err != nil {
			return reason, err
		}
	}
}

// streamTurn runs one adapter call and accumulates the assistant turn,
// re-emitting each event to the stream sink.
func (r *Runner) streamTurn(ctx context.Context, history []Message) (*turnAccumulator, error) {
	req := StreamRequest{
		Messages:      ProjectLLM(history),
		Model:         r.model,
		Temperature:   r.config.Temperature,
		MaxTokens:     r.config.MaxTokens,
		ThinkingLevel: r.config.ThinkingLevel,
	}
	if !r.config.DisableTools && r.tools != nil {
		req.Tools = r.tools.Specs(r.allowedTools)
	}

	ch, err := streamWithRetry(ctx, r.adapter, req)
	if err != nil {
		return nil, err
	}

	acc := newTurnAccumulator()
	for ev := range ch {
		acc.Add(ev)
		r.emitStream(ev)
	}
	return acc, nil
}

// dispatchCalls executes the turn's tool calls sequentially. A steering
// message consumed after a call cancels the calls that have not yet run;
// the loop then proceeds to the next turn with the steer in history.
func (r *Runner) dispatchCalls(ctx context.Context, calls []ToolCall) (FinishReason, error) {
	for i, call := range calls {
		if ctx.Err() != nil {
			return FinishAborted, ErrAborted
		}

		res := r.bus.Emit(ctx, &Event{
			Name:       EventBeforeToolCall,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			ToolArgs:   call.Arguments,
			ChildID:    r.childID,
		})

		var output string
		if res.Blocked {
			output = fmt.Sprintf("tool call blocked: %s", res.BlockReason)
		} else {
			output = r.runTool(ctx, call)
			if ctx.Err() != nil {
				r.append(ToolMessage(call.ID, output))
				return FinishAborted, ErrAborted
			}
		}

		after := r.bus.Emit(ctx, &Event{
			Name:       EventAfterToolResult,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Result:     output,
			ChildID:    r.childID,
		})
		if after.Result != nil {
			output = *after.Result
		}
		r.append(ToolMessage(call.ID, output))
		r.emitStream(StreamEvent{
			Type:       StreamToolResult,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    output,
		})

		if pending := r.steering.Drain(); len(pending) > 0 {
			for _, msg := range pending {
				r.append(UserMessage(msg))
			}
			if skipped := len(calls) - i - 1; skipped > 0 {
				r.logger.Debug("steering cancelled remaining tool calls", "skipped", skipped)
			}
			return "", nil
		}
	}
	return "", nil
}

// runTool dispatches a single call. Failures become tool output, never
// loop errors.
func (r *Runner) runTool(ctx context.Context, call ToolCall) string {
	if !Allowed(call.Name, r.allowedTools) {
		return fmt.Sprintf("tool %q is not permitted in this context", call.Name)
	}
	tool, ok := r.tools.Get(call.Name)
	if !ok {
		return fmt.Sprintf("unknown tool %q", call.Name)
	}

	args := json.RawMessage(call.Arguments)
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(tool.Schema(), args); err != nil {
		return fmt.Sprintf("tool %q: %v", call.Name, err)
	}

	onOutput := func(chunk string) {
		r.bus.Emit(ctx, &Event{
			Name:       EventToolExecUpdate,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Result:     chunk,
			ChildID:    r.childID,
		})
		r.emitStream(StreamEvent{
			Type:       StreamToolExecution,
			ToolName:   call.Name,
			ToolCallID: call.ID,
			Content:    chunk,
		})
	}

	output, err := tool.Execute(ctx, args, onOutput)
	if err != nil {
		return fmt.Sprintf("tool %q failed: %v", call.Name, err)
	}
	return output
}

// slashInvoke handles /name args: resolve the skill, apply its scoped
// model and tool overrides, and run inline or in a fork.
func (r *Runner) slashInvoke(ctx context.Context, name, args string, emitLifecycle bool) (string, error) {
	snap, err := r.engine.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("load skills: %w", err)
	}
	skill, ok := snap.Get(name)
	if !ok || !skill.UserInvocable {
		return "", fmt.Errorf("%w: %q is not an invocable command", ErrSkillNotFound, name)
	}

	content := skills.ResolveContent(ctx, skill, args, r.commandRunner())

	if skill.Context == skills.ContextFork {
		result, err := r.runFork(ctx, skill, content, args)
		if err != nil {
			return "", err
		}
		r.append(AssistantMessage(result, nil))
		return result, nil
	}

	restore := r.applyOverrides(ctx, skill)
	defer restore()

	r.append(UserMessage(content))
	if emitLifecycle {
		r.bus.Emit(ctx, &Event{Name: EventAgentStart, Message: content, ChildID: r.childID})
	}
	reason, err := r.innerLoop(ctx)
	if emitLifecycle {
		r.bus.Emit(ctx, &Event{Name: EventAgentEnd, FinishReason: reason, ChildID: r.childID})
		r.emitStream(StreamEvent{Type: StreamDone})
	}
	if err != nil {
		return "", err
	}
	return r.lastAssistant(), nil
}

// applyOverrides installs the skill's model and allowed-tools overrides
// and returns a restore that releases them on every exit path.
func (r *Runner) applyOverrides(ctx context.Context, skill *skills.Skill) func() {
	prevModel := r.model
	prevAllowed := r.allowedTools

	if skill.Model != "" && skill.Model != r.model {
		r.model = skill.Model
		r.bus.Emit(ctx, &Event{
			Name:    EventModelChange,
			ChildID: r.childID,
			Data:    map[string]any{"from": prevModel, "to": skill.Model},
		})
	}
	if len(skill.AllowedTools) > 0 {
		r.allowedTools = skill.AllowedTools
	}

	return func() {
		if r.model != prevModel {
			r.bus.Emit(ctx, &Event{
				Name:    EventModelChange,
				ChildID: r.childID,
				Data:    map[string]any{"from": r.model, "to": prevModel},
			})
		}
		r.model = prevModel
		r.allowedTools = prevAllowed
	}
}

// runFork executes a skill in a child runner with fresh history seeded
// from the skill content. The child shares the engine, adapter, tools,
// and bus; its events carry a child id.
func (r *Runner) runFork(ctx context.Context, skill *skills.Skill, content, args string) (string, error) {
	cfg := r.config
	cfg.SystemPrompt = content
	if skill.Model != "" {
		cfg.Model = skill.Model
	}

	// The registry is shared without re-registering: the skill tool
	// stays bound to the runner that owns the conversation, so the
	// child's scoped config cannot leak into later invocations.
	child := NewRunner(r.engine, r.adapter, r.bus, r.ctx, nil, r.runtime, cfg)
	child.tools = r.tools
	child.childID = uuid.NewString()
	child.onStream = r.onStream
	if len(skill.AllowedTools) > 0 {
		child.allowedTools = skill.AllowedTools
	}
	child.append(SystemMessage(content))

	message := args
	if message == "" {
		message = "Proceed."
	}
	result, err := child.Chat(ctx, message)
	if err != nil {
		return "", fmt.Errorf("fork %s: %w", skill.Name, err)
	}
	return result, nil
}

// resolveSkill backs the skill tool: fork skills run in a child, inline
// skills return their resolved content.
func (r *Runner) resolveSkill(ctx context.Context, name, arguments string) (string, error) {
	snap, err := r.engine.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("load skills: %w", err)
	}
	skill, ok := snap.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrSkillNotFound, name)
	}

	if skill.Context == skills.ContextFork {
		return r.runFork(ctx, skill, skill.Content, arguments)
	}
	return skills.ResolveContent(ctx, skill, arguments, r.commandRunner()), nil
}

// commandRunner adapts the subprocess runtime for inline content
// expansion; stderr is discarded.
func (r *Runner) commandRunner() skills.CommandRunner {
	if r.runtime == nil {
		return nil
	}
	return func(ctx context.Context, command string) (string, error) {
		result, err := r.runtime.Execute(ctx, command+" 2>/dev/null", exec.Options{})
		if err != nil {
			return "", err
		}
		if !result.Success {
			return "", fmt.Errorf("command failed: %s", result.Error)
		}
		return result.Output, nil
	}
}

func (r *Runner) compact(ctx context.Context) {
	reduced, stats, err := r.ctx.Compact(ctx, r.snapshotHistory())
	if err != nil {
		r.logger.Warn("compaction failed", "error", err)
		return
	}
	r.setHistory(reduced)
	r.bus.Emit(ctx, &Event{
		Name:    EventCompaction,
		ChildID: r.childID,
		Data: map[string]any{
			"messages_before": stats.MessagesBefore,
			"messages_after":  stats.MessagesAfter,
			"tokens_before":   stats.TokensBefore,
			"tokens_after":    stats.TokensAfter,
		},
	})
}

func (r *Runner) emitStream(ev StreamEvent) {
	if r.onStream != nil {
		r.onStream(ev)
	}
}

func (r *Runner) append(m Message) {
	r.mu.Lock()
	r.history = append(r.history, m)
	r.mu.Unlock()
}

func (r *Runner) snapshotHistory() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.history))
	copy(out, r.history)
	return out
}

func (r *Runner) setHistory(history []Message) {
	r.mu.Lock()
	r.history = history
	r.mu.Unlock()
}

func (r *Runner) lastAssistant() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.history) - 1; i >= 0; i-- {
		if r.history[i].Role == RoleAssistant {
			return r.history[i].Content
		}
	}
	return ""
}

// parseSlash splits "/name args" into its parts. Only single-token
// lowercase names qualify, so ordinary prose starting with "/" passes
// through as a normal message.
func parseSlash(message string) (name, args string, ok bool) {
	if !strings.HasPrefix(message, "/") {
		return "", "", false
	}
	rest := strings.TrimPrefix(message, "/")
	name, args, _ = strings.Cut(rest, " ")
	if !skills.ValidName(name) {
		return "", "", false
	}
	return name, strings.TrimSpace(args), true
}
