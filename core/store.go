package core

import (
	"context"
	"errors"
	"strings"
	"sync"

	"pkt.systems/burrow/internal/cache"
	"pkt.systems/burrow/internal/fetch"
	"pkt.systems/burrow/internal/logx"
	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/internal/replication"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// errDiscard aborts a mutation without reporting an error to the caller.
var errDiscard = errors.New("mutation discarded")

// StoreDeps captures optional dependencies for the state store.
type StoreDeps struct {
	Channel *replication.Channel
	Logger  pslog.Logger
	Metrics *metrics.Metrics
}

// Store owns the navigation state. Every change goes through Mutate, which
// runs one mutation at a time and publishes the resulting change-set before
// the next mutation starts.
type Store struct {
	mu      sync.Mutex
	state   schema.State
	channel *replication.Channel
	logger  pslog.Logger
	metrics *metrics.Metrics
}

// NewStore returns a store holding an empty state.
func NewStore(deps StoreDeps) *Store {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	channel := deps.Channel
	if channel == nil {
		channel = replication.New(logger, deps.Metrics)
	}
	return &Store{
		state:   schema.NewState(),
		channel: channel,
		logger:  logger,
		metrics: deps.Metrics,
	}
}

// Tx is the view a mutation works on. It is only valid inside the Mutate
// callback.
type Tx struct {
	state *schema.State
	cache *cache.Cache
	after []func()
}

// State returns the working copy. Changes to it become the next state when
// the callback returns nil.
func (tx *Tx) State() *schema.State { return tx.state }

// Cache returns the resource cache over the working copy.
func (tx *Tx) Cache() *cache.Cache { return tx.cache }

// After registers fn to run once the mutation has been published. Hooks run
// under the mutation lock and are skipped when the callback fails.
func (tx *Tx) After(fn func()) {
	if fn != nil {
		tx.after = append(tx.after, fn)
	}
}

// Mutate applies fn to a copy of the state, computes the change-set and
// delivers it to every observer. When fn fails nothing is applied. A
// mutation that changes nothing returns an empty change-set carrying the
// current sequence number and is not published.
func (s *Store) Mutate(ctx context.Context, command string, fn func(tx *Tx) error) (schema.ChangeSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	tx := &Tx{state: &next, cache: cache.Over(next.Resources)}
	if err := fn(tx); err != nil {
		return schema.ChangeSet{Seq: s.state.Seq, Command: command}, err
	}
	edits, err := Diff(s.state, next)
	if err != nil {
		return schema.ChangeSet{Seq: s.state.Seq, Command: command}, err
	}
	cs := schema.ChangeSet{Seq: s.state.Seq, Command: command, Edits: edits}
	if !cs.Empty() {
		next.Seq = s.state.Seq + 1
		cs.Seq = next.Seq
		s.state = next
		s.metrics.RecordMutation(command, len(edits), len(next.Resources))
		log := logx.WithChangeSet(s.log(ctx), cs)
		log.Trace("store mutate", "edit_paths", editPaths(edits))
		s.channel.Publish(next, cs)
	}
	for _, hook := range tx.after {
		hook()
	}
	return cs, nil
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() schema.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Seq returns the sequence number of the last applied change-set.
func (s *Store) Seq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Seq
}

// SubscribeWithSnapshot takes a snapshot and subscribes the observer with no
// mutation in between. The observer receives every change-set after the
// returned state's sequence number.
func (s *Store) SubscribeWithSnapshot(observer replication.Observer) (schema.State, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel := s.channel.Subscribe(observer)
	return s.state.Clone(), cancel
}

// Subscribe registers an observer without a snapshot.
func (s *Store) Subscribe(observer replication.Observer) func() {
	return s.channel.Subscribe(observer)
}

// CommitFetch implements fetch.Writer. The outcome is written only when live
// still holds once the mutation lock is taken.
func (s *Store) CommitFetch(out fetch.Outcome, live func() bool) {
	ctx := pslog.ContextWithLogger(context.Background(), s.logger)
	_, err := s.Mutate(ctx, "fetch", func(tx *Tx) error {
		if !live() {
			return errDiscard
		}
		if _, ok := fetch.Apply(tx.Cache(), out); !ok {
			return errDiscard
		}
		return nil
	})
	if err != nil && !errors.Is(err, errDiscard) {
		logx.WithURL(s.logger, out.URL).Warn("store fetch commit failed", "err", err)
	}
}

func (s *Store) log(ctx context.Context) pslog.Logger {
	if ctx == nil {
		return s.logger
	}
	return pslog.Ctx(ctx)
}

func editPaths(edits []schema.Edit) []string {
	out := make([]string, 0, len(edits))
	for _, e := range edits {
		out = append(out, string(e.Op)+" "+strings.Join(e.Path, "/"))
	}
	return out
}
