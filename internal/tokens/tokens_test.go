package tokens

import (
	"strings"
	"testing"
)

func TestEstimatorCount(t *testing.T) {
	est := NewEstimator("gpt-4o")

	if got := est.Count(""); got != 0 {
		t.Errorf("empty text should be 0 tokens, got %d", got)
	}

	short := est.Count("hello")
	if short < 1 {
		t.Errorf("expected at least 1 token, got %d", short)
	}

	long := est.Count(strings.Repeat("the quick brown fox ", 100))
	if long <= short {
		t.Errorf("longer text should count more tokens: %d vs %d", long, short)
	}
}

func TestEstimatorOverhead(t *testing.T) {
	est := NewEstimator("gpt-4o")
	text := "some message content"
	if est.CountWithOverhead(text) != est.Count(text)+messageOverhead {
		t.Error("overhead should add the fixed per-message framing")
	}
}

func TestEstimatorDeterministic(t *testing.T) {
	est := NewEstimator("gpt-4o")
	text := "determinism matters for compaction thresholds"
	if est.Count(text) != est.Count(text) {
		t.Error("counts should be stable across calls")
	}
}

func TestHeuristicFallback(t *testing.T) {
	est := &Estimator{model: "unknown-model"}

	if got := est.Count(""); got != 0 {
		t.Errorf("empty text should be 0 tokens, got %d", got)
	}
	if got := est.Count("ab"); got != 1 {
		t.Errorf("short text should round up to 1 token, got %d", got)
	}
	if got := est.Count(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("expected 100 tokens for 400 chars, got %d", got)
	}
}
