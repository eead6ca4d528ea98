package agent

import "sync"

// messageQueue is a FIFO for steering and follow-up messages. Safe for
// concurrent producers; the runner is the only consumer.
type messageQueue struct {
	mu    sync.Mutex
	items []string
}

// Push enqueues a message.
func (q *messageQueue) Push(message string) {
	q.mu.Lock()
	q.items = append(q.items, message)
	q.mu.Unlock()
}

// Drain removes and returns all queued messages in FIFO order.
func (q *messageQueue) Drain() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Pop removes and returns the oldest message.
func (q *messageQueue) Pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	head := q.items[0]
	q.items = q.items[1:]
	return head, true
}

// Len returns the queue depth.
func (q *messageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
