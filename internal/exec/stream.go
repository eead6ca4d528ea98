package exec

import (
	"bytes"
	"sync"
)

// flushThreshold forces a streaming callback even without a newline.
const flushThreshold = 4096

// streamBuffer captures subprocess output up to a cap while forwarding
// chunks to an optional callback. Chunks are flushed on newline boundaries
// or once the pending buffer reaches 4KiB. Writes past the cap are
// swallowed so a chatty subprocess cannot grow memory unbounded.
type streamBuffer struct {
	mu        sync.Mutex
	captured  bytes.Buffer
	pending   bytes.Buffer
	max       int
	truncated bool
	onChunk   func(string)
}

func newStreamBuffer(max int, onChunk func(string)) *streamBuffer {
	return &streamBuffer{max: max, onChunk: onChunk}
}

func (b *streamBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()

	if b.captured.Len() < b.max {
		room := b.max - b.captured.Len()
		if len(p) > room {
			b.captured.Write(p[:room])
			b.truncated = true
		} else {
			b.captured.Write(p)
		}
	} else if len(p) > 0 {
		b.truncated = true
	}

	var chunks []string
	if b.onChunk != nil {
		b.pending.Write(p)
		for {
			data := b.pending.Bytes()
			idx := bytes.LastIndexByte(data, '\n')
			if idx >= 0 {
				chunks = append(chunks, string(data[:idx+1]))
				b.pending.Next(idx + 1)
				continue
			}
			if b.pending.Len() >= flushThreshold {
				chunks = append(chunks, b.pending.String())
				b.pending.Reset()
				continue
			}
			break
		}
	}
	b.mu.Unlock()

	for _, chunk := range chunks {
		b.onChunk(chunk)
	}
	return len(p), nil
}

// Flush emits any buffered partial line. Called once after the process
// exits.
func (b *streamBuffer) Flush() {
	b.mu.Lock()
	var tail string
	if b.onChunk != nil && b.pending.Len() > 0 {
		tail = b.pending.String()
		b.pending.Reset()
	}
	b.mu.Unlock()

	if tail != "" {
		b.onChunk(tail)
	}
}

// String returns the captured output with a truncation marker when the cap
// was hit.
func (b *streamBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.captured.String() + TruncationMarker
	}
	return b.captured.String()
}

// Truncated reports whether output exceeded the cap.
func (b *streamBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}
