// Package tokens estimates token counts for context budgeting.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// messageOverhead approximates the per-message framing tokens chat APIs add
// around role and content.
const messageOverhead = 4

// Estimator counts tokens for a model. It uses the model's tiktoken
// encoding when available and falls back to a character heuristic when the
// encoding cannot be loaded (offline hosts, unknown models).
type Estimator struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// NewEstimator creates an estimator for the model. It never fails; when no
// encoding resolves the estimator falls back to a heuristic.
func NewEstimator(model string) *Estimator {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &Estimator{encoding: cached, model: model}
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return &Estimator{model: model}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()
	return &Estimator{encoding: encoding, model: model}
}

// Count returns the token count for text.
func (e *Estimator) Count(text string) int {
	if e.encoding != nil {
		return len(e.encoding.Encode(text, nil, nil))
	}
	return heuristicCount(text)
}

// CountWithOverhead counts text plus the per-message framing overhead.
func (e *Estimator) CountWithOverhead(text string) int {
	return e.Count(text) + messageOverhead
}

// Model returns the model the estimator was built for.
func (e *Estimator) Model() string { return e.model }

// heuristicCount approximates tokens as one per four characters, the usual
// rule of thumb for English prose with code skewing slightly denser.
func heuristicCount(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	count := n / 4
	if count == 0 {
		count = 1
	}
	return count
}
