package replication

import (
	"sync"

	"pkt.systems/burrow/schema"
)

const defaultQueueDepth = 256

// Update is one delivered change-set with its resulting state.
type Update struct {
	State   schema.State
	Changes schema.ChangeSet
}

// Queue buffers updates for a consumer on another goroutine. Observe never
// blocks: when the buffer is full the queue is marked lagged and closed, and
// the consumer has to start over from a fresh snapshot.
type Queue struct {
	mu     sync.Mutex
	ch     chan Update
	closed bool
	lagged bool
	onLag  func()
}

// NewQueue returns a queue holding up to depth updates. onLag, if set, is
// called once when the queue overflows.
func NewQueue(depth int, onLag func()) *Queue {
	if depth <= 0 {
		depth = defaultQueueDepth
	}
	return &Queue{ch: make(chan Update, depth), onLag: onLag}
}

// Observe implements Observer.
func (q *Queue) Observe(state schema.State, changes schema.ChangeSet) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	select {
	case q.ch <- Update{State: state, Changes: changes}:
		q.mu.Unlock()
		return
	default:
	}
	q.lagged = true
	q.closed = true
	close(q.ch)
	onLag := q.onLag
	q.mu.Unlock()
	if onLag != nil {
		onLag()
	}
}

// Updates returns the receive side. It is closed on Close or overflow.
func (q *Queue) Updates() <-chan Update {
	return q.ch
}

// Lagged reports whether the queue was closed because it overflowed.
func (q *Queue) Lagged() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lagged
}

// Close closes the queue. Further updates are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
