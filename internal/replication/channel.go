// Package replication delivers state change-sets to observers.
package replication

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// Observer receives every change-set together with the state it produced.
// The state is shared between observers and must be treated as read-only.
// Observers run while the store holds its mutation lock and must not call
// back into the store.
type Observer interface {
	Observe(state schema.State, changes schema.ChangeSet)
}

// ObserverFunc adapts a function into an Observer.
type ObserverFunc func(state schema.State, changes schema.ChangeSet)

// Observe implements Observer.
func (f ObserverFunc) Observe(state schema.State, changes schema.ChangeSet) {
	f(state, changes)
}

type subscription struct {
	id       uint64
	observer Observer
}

// Channel fans change-sets out to observers in subscription order.
type Channel struct {
	mu      sync.Mutex
	subs    []subscription
	nextID  uint64
	log     pslog.Logger
	metrics *metrics.Metrics
}

// New constructs a Channel.
func New(logger pslog.Logger, m *metrics.Metrics) *Channel {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Channel{log: logger, metrics: m}
}

// Subscribe registers an observer and returns its cancel function.
func (c *Channel) Subscribe(observer Observer) func() {
	if c == nil || observer == nil {
		return func() {}
	}
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.subs = append(c.subs, subscription{id: id, observer: observer})
	count := len(c.subs)
	c.mu.Unlock()
	c.metrics.SetObservers(count)
	c.log.Debug("replication subscribe", "observer", id, "observers", count)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			for i, sub := range c.subs {
				if sub.id == id {
					c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
					break
				}
			}
			count := len(c.subs)
			c.mu.Unlock()
			c.metrics.SetObservers(count)
			c.log.Debug("replication unsubscribe", "observer", id, "observers", count)
		})
	}
}

// Len returns the number of observers.
func (c *Channel) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Publish delivers one change-set to every observer before returning. A
// panicking observer is logged and skipped.
func (c *Channel) Publish(state schema.State, changes schema.ChangeSet) {
	if c == nil {
		return
	}
	c.mu.Lock()
	subs := make([]subscription, len(c.subs))
	copy(subs, c.subs)
	c.mu.Unlock()
	for _, sub := range subs {
		c.deliver(sub, state, changes)
	}
}

func (c *Channel) deliver(sub subscription, state schema.State, changes schema.ChangeSet) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("replication observer panic", "observer", sub.id, "seq", changes.Seq, "err", fmt.Sprint(r))
		}
	}()
	sub.observer.Observe(state, changes)
}
