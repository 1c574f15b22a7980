// Package notify holds the change notifications waiting for the next client poll.
package notify

import "sync"

// Message tells polling clients that the project changed on disk.
type Message struct {
	IsDirty bool   `json:"isDirty"`
	File    string `json:"file,omitempty"`
}

// Dirty returns the notification for a changed file.
func Dirty(file string) Message {
	return Message{IsDirty: true, File: file}
}

// Queue is a coalescing queue: a message equal to one already pending is dropped.
// Push and Drain may be called from different goroutines.
type Queue[M comparable] struct {
	mu      sync.Mutex
	pending []M
	index   map[M]struct{}
}

func NewQueue[M comparable]() *Queue[M] {
	return &Queue[M]{index: make(map[M]struct{})}
}

// Push appends m unless an equal message is pending. It reports whether m was added.
func (q *Queue[M]) Push(m M) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, dup := q.index[m]; dup {
		return false
	}
	q.index[m] = struct{}{}
	q.pending = append(q.pending, m)
	return true
}

// Drain empties the queue and returns its contents in push order.
func (q *Queue[M]) Drain() []M {
	q.mu.Lock()
	out := q.pending
	q.pending = nil
	if len(out) > 0 {
		q.index = make(map[M]struct{})
	}
	q.mu.Unlock()

	if out == nil {
		out = []M{}
	}
	return out
}

// Len returns the number of pending messages.
func (q *Queue[M]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
