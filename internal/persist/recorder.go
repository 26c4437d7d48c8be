package persist

import (
	"context"
	"sync"

	"pkt.systems/burrow/schema"
)

// Recorder is a replication observer that writes the most recent state in
// the background. Intermediate states are skipped when saves fall behind.
type Recorder struct {
	store  *Store
	mu     sync.Mutex
	latest *schema.State
	signal chan struct{}
}

// NewRecorder returns a recorder writing to store.
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, signal: make(chan struct{}, 1)}
}

// Observe implements replication.Observer.
func (r *Recorder) Observe(state schema.State, _ schema.ChangeSet) {
	r.mu.Lock()
	r.latest = &state
	r.mu.Unlock()
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

// Run saves states until ctx ends, then writes whatever is still pending.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return r.flush()
		case <-r.signal:
			_ = r.flush()
		}
	}
}

func (r *Recorder) flush() error {
	r.mu.Lock()
	state := r.latest
	r.latest = nil
	r.mu.Unlock()
	if state == nil {
		return nil
	}
	return r.store.Save(*state)
}
