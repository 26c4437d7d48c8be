package fetch

import (
	"errors"
	"sync"

	"pkt.systems/burrow/internal/cache"
	"pkt.systems/burrow/schema"
)

var (
	// ErrCancelled is the outcome of a fetch whose owners all went away.
	ErrCancelled = errors.New("fetch cancelled")
	// ErrTooLarge is returned when a payload exceeds the configured limit.
	ErrTooLarge = errors.New("payload exceeds size limit")
	// ErrClosed is returned by Request after Close.
	ErrClosed = errors.New("fetch coordinator closed")
)

// Outcome is the result of one network fetch, shared by every handle
// attached to it.
type Outcome struct {
	URL      string
	Payload  []byte
	MIMEType string
	Charset  string
	Err      error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Writer receives completed fetches. live must be called while the writer
// holds whatever lock serialises its state; it returns false when the fetch
// was cancelled and the outcome must be dropped.
type Writer interface {
	CommitFetch(out Outcome, live func() bool)
}

// Apply writes an outcome into c and returns the stored resource. The
// version is always bumped: a failure is new information too. A failure
// keeps the last successful payload.
func Apply(c *cache.Cache, out Outcome) (schema.Resource, bool) {
	prev, _ := c.Get(out.URL)
	next := schema.Resource{
		URL:     out.URL,
		Version: prev.Version + 1,
	}
	if out.OK() {
		next.Status = schema.ResourceReady
		next.Payload = out.Payload
		next.MIMEType = out.MIMEType
		next.Charset = out.Charset
	} else {
		next.Status = schema.ResourceFailed
		next.Payload = prev.Payload
		next.MIMEType = prev.MIMEType
		next.Charset = prev.Charset
		next.Error = out.Err.Error()
	}
	if !c.Put(next) {
		return prev, false
	}
	return next, true
}

// CacheWriter commits outcomes straight into a cache. It is used when the
// coordinator runs without a state store, e.g. one-shot CLI fetches.
type CacheWriter struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewCacheWriter wraps c.
func NewCacheWriter(c *cache.Cache) *CacheWriter {
	if c == nil {
		c = cache.New()
	}
	return &CacheWriter{cache: c}
}

// CommitFetch implements Writer.
func (w *CacheWriter) CommitFetch(out Outcome, live func() bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !live() {
		return
	}
	Apply(w.cache, out)
}

// Get returns the cached resource for url.
func (w *CacheWriter) Get(url string) (schema.Resource, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cache.Get(url)
}
