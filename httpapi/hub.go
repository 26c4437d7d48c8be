package httpapi

import (
	"context"
	"sync"

	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// Message is the envelope sent to presentation clients on both the
// WebSocket and the event stream.
type Message struct {
	Type    string                `json:"type"`
	Seq     uint64                `json:"seq,omitempty"`
	State   *schema.State         `json:"state,omitempty"`
	Changes *schema.ChangeSet     `json:"changes,omitempty"`
	ID      string                `json:"id,omitempty"`
	Result  *schema.CommandResult `json:"result,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// Message types.
const (
	MessageSnapshot = "snapshot"
	MessageChanges  = "changes"
	MessageResult   = "result"
	MessageError    = "error"
)

func snapshotMessage(state schema.State) Message {
	return Message{Type: MessageSnapshot, Seq: state.Seq, State: &state}
}

func changesMessage(cs schema.ChangeSet) Message {
	return Message{Type: MessageChanges, Seq: cs.Seq, Changes: &cs}
}

// Hub retains the most recent change-sets so a reconnecting stream can
// resume from its last event id instead of reloading the whole state.
type Hub struct {
	mu          sync.Mutex
	history     []schema.ChangeSet
	historySize int
	log         pslog.Logger
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize int, logger pslog.Logger) *Hub {
	if historySize <= 0 {
		historySize = 1000
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Hub{historySize: historySize, log: logger}
}

// Observe implements replication.Observer.
func (h *Hub) Observe(_ schema.State, cs schema.ChangeSet) {
	h.mu.Lock()
	h.history = append(h.history, cs)
	if len(h.history) > h.historySize {
		h.history = append([]schema.ChangeSet(nil), h.history[len(h.history)-h.historySize:]...)
	}
	retained := len(h.history)
	h.mu.Unlock()
	logx.WithChangeSet(h.log, cs).Trace("hub change-set", "retained", retained)
}

// Replay returns the change-sets with after < seq <= upto. ok is false when
// the retained history no longer reaches back to after.
func (h *Hub) Replay(after, upto uint64) ([]schema.ChangeSet, bool) {
	if after == upto {
		return nil, true
	}
	if after > upto {
		return nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.history) == 0 || h.history[0].Seq > after+1 {
		h.log.Debug("hub replay miss", "after", after, "upto", upto)
		return nil, false
	}
	out := make([]schema.ChangeSet, 0, upto-after)
	for _, cs := range h.history {
		if cs.Seq > after && cs.Seq <= upto {
			out = append(out, cs)
		}
	}
	if len(out) == 0 || out[len(out)-1].Seq != upto {
		return nil, false
	}
	h.log.Debug("hub replay", "after", after, "count", len(out))
	return out, true
}

// Len returns the number of retained change-sets.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.history)
}
