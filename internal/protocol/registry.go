// Package protocol maps URL schemes to fetch capabilities.
package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	"pkt.systems/burrow/schema"
)

// ErrSchemeRegistered is returned when a scheme already has a capability.
var ErrSchemeRegistered = errors.New("scheme already registered")

// Capability fetches URLs of one scheme. The returned stream may deliver the
// payload in chunks; closing it or cancelling ctx aborts the transfer.
type Capability interface {
	Scheme() string
	Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// Resolver looks up the capability for a URL.
type Resolver interface {
	Resolve(rawURL string) (Capability, bool)
}

// Registry is a scheme lookup table safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	byKey map[string]Capability
}

// NewRegistry returns a registry holding the given capabilities.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{byKey: make(map[string]Capability)}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a capability. A second capability for the same scheme is an
// error here rather than at lookup time.
func (r *Registry) Register(c Capability) error {
	if c == nil {
		return errors.New("nil capability")
	}
	scheme := strings.ToLower(strings.TrimSpace(c.Scheme()))
	if scheme == "" {
		return errors.New("capability has no scheme")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byKey[scheme]; ok {
		return fmt.Errorf("%w: %s", ErrSchemeRegistered, scheme)
	}
	r.byKey[scheme] = c
	return nil
}

// Resolve returns the capability for rawURL's scheme.
func (r *Registry) Resolve(rawURL string) (Capability, bool) {
	if r == nil {
		return nil, false
	}
	u, err := schema.ParseURL(rawURL)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byKey[u.Scheme]
	return c, ok
}

// Handles reports whether rawURL's scheme is owned by this browser.
func (r *Registry) Handles(rawURL string) bool {
	_, ok := r.Resolve(rawURL)
	return ok
}

// Schemes lists registered schemes in sorted order.
func (r *Registry) Schemes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for scheme := range r.byKey {
		out = append(out, scheme)
	}
	sort.Strings(out)
	return out
}

// Func adapts a function into a Capability.
type Func struct {
	Name string
	Fn   func(ctx context.Context, u *url.URL) (io.ReadCloser, error)
}

// Scheme implements Capability.
func (f Func) Scheme() string { return f.Name }

// Fetch implements Capability.
func (f Func) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	return f.Fn(ctx, u)
}
