package bus

import (
	"sync"

	"github.com/driftline/activitybus/internal/activity"
)

// activityQueue is a thread-safe FIFO handoff between Submit and
// DispatchNext.
//
// The queue is unbounded: cascading resubmissions may enqueue
// arbitrarily many activities from inside a dispatch, and blocking there
// would deadlock the single consumer against itself.
//
// Any number of producers may enqueue concurrently; ordering is FIFO
// relative to enqueue completion. A buffered signal channel (size 1)
// lets the consumer wait without spinning and coalesces bursts of
// signals.
type activityQueue struct {
	mu     sync.Mutex
	items  []activity.Activity
	closed bool
	signal chan struct{}
}

func newActivityQueue() *activityQueue {
	return &activityQueue{
		items:  make([]activity.Activity, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an activity to the back of the queue.
// Returns false if the queue is closed.
func (q *activityQueue) Enqueue(act activity.Activity) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, act)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes and returns the front activity without blocking.
// Returns (nil, false) if the queue is empty.
func (q *activityQueue) TryDequeue() (activity.Activity, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}

	act := q.items[0]

	// Release the slot so the backing array does not pin the activity.
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return act, true
}

// Wait returns a channel that signals when items may be available. Use
// with select against ctx.Done, then retry TryDequeue. The channel is
// closed when the queue closes, so waiters wake immediately.
func (q *activityQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *activityQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Closed reports whether the queue has been closed.
func (q *activityQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close marks the queue closed and wakes all waiters. Enqueue after
// Close returns false; items already queued can still be dequeued.
func (q *activityQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
