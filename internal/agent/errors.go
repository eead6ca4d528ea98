package agent

import "errors"

var (
	// ErrBusy means a second Chat entered a runner with a turn in flight.
	ErrBusy = errors.New("agent: runner is busy")

	// ErrAborted means the chat was cancelled via Abort.
	ErrAborted = errors.New("agent: aborted")

	// ErrSkillNotFound means a slash command named an unknown or
	// non-invocable skill.
	ErrSkillNotFound = errors.New("agent: skill not found")
)

// FinishReason explains why an inner loop exited.
type FinishReason string

const (
	FinishComplete FinishReason = "complete"
	FinishMaxTurns FinishReason = "max_turns"
	FinishAborted  FinishReason = "aborted"
	FinishError    FinishReason = "error"
)
