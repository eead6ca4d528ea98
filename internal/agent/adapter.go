package agent

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ToolSpec describes a tool to the model.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Schema      json.RawMessage `json:"schema"`
}

// ThinkingLevel controls provider reasoning effort.
type ThinkingLevel string

const (
	ThinkingOff      ThinkingLevel = "off"
	ThinkingShort    ThinkingLevel = "short"
	ThinkingLong     ThinkingLevel = "long"
	ThinkingExtended ThinkingLevel = "extended"
)

// StreamRequest is one model call.
type StreamRequest struct {
	Messages      []LLMMessage
	Tools         []ToolSpec
	Model         string
	Temperature   float32
	MaxTokens     int
	ThinkingLevel ThinkingLevel
}

// Adapter streams model turns. Implementations must honour context
// cancellation promptly and keep tool-call ids stable across the
// start/delta/end events of one call.
type Adapter interface {
	// Stream starts a model call and returns a channel of events. The
	// channel is closed after the finish or error event. Setup failures
	// are returned directly.
	Stream(ctx context.Context, req StreamRequest) (<-chan StreamEvent, error)
}

// TransientError marks an adapter failure worth retrying: timeouts,
// 5xx responses, connection resets. Semantic failures (bad request,
// auth) must not carry it.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is a retryable adapter failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

const (
	maxStreamAttempts = 3
	retryBaseDelay    = 500 * time.Millisecond
)

// streamWithRetry calls the adapter, retrying transient setup failures
// with exponential backoff up to three attempts. Errors surfaced inside
// an established stream are not retried here; the loop converts them to
// an error finish.
func streamWithRetry(ctx context.Context, adapter Adapter, req StreamRequest) (<-chan StreamEvent, error) {
	var lastErr error
	delay := retryBaseDelay
	for attempt := 1; attempt <= maxStreamAttempts; attempt++ {
		ch, err := adapter.Stream(ctx, req)
		if err == nil {
			return ch, nil
		}
		lastErr = err
		if !IsTransient(err) || attempt == maxStreamAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, lastErr
}
