package worker

import (
	"sync"

	"github.com/thebtf/feels/pkg/models"
)

// Queue is the FIFO hand-off between the feed tailer and the processor.
type Queue struct {
	mu    sync.Mutex
	items []*models.RawEvent
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push appends ev.
func (q *Queue) Push(ev *models.RawEvent) {
	if ev == nil {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, ev)
	q.mu.Unlock()
}

// TryPop removes and returns the oldest event without blocking.
func (q *Queue) TryPop() (*models.RawEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	ev := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return ev, true
}

// Clear drops every queued event and returns how many were dropped.
func (q *Queue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
