package agent

import (
	"context"
	"fmt"
	"log/slog"
)

// Estimator counts tokens for budgeting. The estimate is a local gate,
// not a provider guarantee, so any consistent counter works.
type Estimator interface {
	Count(text string) int
}

// Compactor shrinks history when the context budget is exceeded.
type Compactor interface {
	// Compact returns a reduced history. The input is never mutated.
	Compact(ctx context.Context, history []Message, target int, est Estimator) ([]Message, error)
}

// CompactionStats describes one compaction pass.
type CompactionStats struct {
	MessagesBefore int `json:"messages_before"`
	MessagesAfter  int `json:"messages_after"`
	TokensBefore   int `json:"tokens_before"`
	TokensAfter    int `json:"tokens_after"`
}

// ContextManager gates history size against the model's context window.
type ContextManager struct {
	window    int
	reserve   int
	threshold float64
	estimator Estimator
	compactor Compactor
	logger    *slog.Logger
}

// NewContextManager creates a manager. threshold <= 0 defaults to 0.9;
// a nil compactor defaults to the sliding window strategy.
func NewContextManager(window, reserve int, threshold float64, est Estimator, compactor Compactor) *ContextManager {
	if threshold <= 0 {
		threshold = 0.9
	}
	if compactor == nil {
		compactor = &SlidingWindowCompactor{}
	}
	return &ContextManager{
		window:    window,
		reserve:   reserve,
		threshold: threshold,
		estimator: est,
		compactor: compactor,
		logger:    slog.Default().With("component", "context"),
	}
}

// Estimate returns the token estimate for the history.
func (cm *ContextManager) Estimate(history []Message) int {
	total := 0
	for _, m := range history {
		total += cm.estimator.Count(m.Content)
		for _, call := range m.ToolCalls {
			total += cm.estimator.Count(call.Arguments)
		}
	}
	return total
}

// budget is the token count compaction aims to stay under.
func (cm *ContextManager) budget() int {
	return int(float64(cm.window)*cm.threshold) - cm.reserve
}

// ShouldCompact reports whether the history has crossed the budget:
// estimate + reserve >= window * threshold.
func (cm *ContextManager) ShouldCompact(history []Message) bool {
	return cm.Estimate(history)+cm.reserve >= int(float64(cm.window)*cm.threshold)
}

// Compact applies the configured strategy and returns the reduced history
// with stats. The caller emits the compaction event.
func (cm *ContextManager) Compact(ctx context.Context, history []Message) ([]Message, *CompactionStats, error) {
	before := cm.Estimate(history)
	reduced, err := cm.compactor.Compact(ctx, history, cm.budget(), cm.estimator)
	if err != nil {
		return history, nil, fmt.Errorf("compact history: %w", err)
	}
	stats := &CompactionStats{
		MessagesBefore: len(history),
		MessagesAfter:  len(reduced),
		TokensBefore:   before,
		TokensAfter:    cm.Estimate(reduced),
	}
	cm.logger.Info("compacted history",
		"messages_before", stats.MessagesBefore,
		"messages_after", stats.MessagesAfter,
		"tokens_before", stats.TokensBefore,
		"tokens_after", stats.TokensAfter)
	return reduced, stats, nil
}

// SlidingWindowCompactor drops the oldest non-system messages until the
// history fits the budget, keeping tool calls and their results paired.
type SlidingWindowCompactor struct{}

// Compact implements Compactor.
func (c *SlidingWindowCompactor) Compact(ctx context.Context, history []Message, target int, est Estimator) ([]Message, error) {
	kept, _ := slideWindow(history, target, est)
	return kept, nil
}

// slideWindow returns the retained history and the dropped middle section.
func slideWindow(history []Message, target int, est Estimator) (kept, dropped []Message) {
	if len(history) == 0 {
		return history, nil
	}

	var system []Message
	rest := history
	if history[0].Role == RoleSystem {
		system = history[:1]
		rest = history[1:]
	}

	estimate := func(msgs []Message) int {
		total := 0
		for _, m := range msgs {
			total += est.Count(m.Content)
			for _, call := range m.ToolCalls {
				total += est.Count(call.Arguments)
			}
		}
		return total
	}

	start := 0
	for start < len(rest)-1 && estimate(system)+estimate(rest[start:]) > target {
		start++
	}
	// A dropped assistant tool call must take its results along, and a
	// retained result must keep its call: advance past orphaned results.
	for start < len(rest)-1 && rest[start].Role == RoleTool {
		start++
	}

	dropped = rest[:start]
	kept = append(append([]Message{}, system...), rest[start:]...)
	return kept, dropped
}

// Summarizer produces a summary of dropped messages. It may call the
// model adapter, but such a call must not re-enter compaction.
type Summarizer func(ctx context.Context, dropped []Message) (string, error)

// SummarizingCompactor replaces dropped messages with a single
// system-role summary.
type SummarizingCompactor struct {
	Summarize Summarizer
}

// Compact implements Compactor.
func (c *SummarizingCompactor) Compact(ctx context.Context, history []Message, target int, est Estimator) ([]Message, error) {
	kept, dropped := slideWindow(history, target, est)
	if len(dropped) == 0 || c.Summarize == nil {
		return kept, nil
	}

	summary, err := c.Summarize(ctx, dropped)
	if err != nil {
		return nil, fmt.Errorf("summarize dropped messages: %w", err)
	}

	out := make([]Message, 0, len(kept)+1)
	insert := 0
	if len(kept) > 0 && kept[0].Role == RoleSystem {
		insert = 1
	}
	out = append(out, kept[:insert]...)
	out = append(out, SystemMessage("Summary of earlier conversation: "+summary))
	out = append(out, kept[insert:]...)
	return out, nil
}
