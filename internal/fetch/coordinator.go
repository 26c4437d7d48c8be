// Package fetch issues, de-duplicates and cancels resource fetches.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/time/rate"

	"pkt.systems/burrow/internal/metrics"
	"pkt.systems/burrow/internal/protocol"
	"pkt.systems/burrow/schema"
	"pkt.systems/pslog"
)

// Owner identifies the tab position a fetch is for. Gen changes every time
// the tab moves, so fetches for a superseded position lose their owner.
type Owner struct {
	Tab schema.TabID
	Gen uint64
}

// Config tunes the coordinator.
type Config struct {
	Timeout     time.Duration
	MaxBytes    int64
	RatePerHost float64
	Burst       int
}

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 8 << 20
)

// Deps are the collaborators of a Coordinator.
type Deps struct {
	Resolver protocol.Resolver
	Writer   Writer
	Logger   pslog.Logger
	Metrics  *metrics.Metrics
}

// Coordinator runs at most one fetch per URL at a time.
type Coordinator struct {
	cfg      Config
	resolver protocol.Resolver
	writer   Writer
	log      pslog.Logger
	metrics  *metrics.Metrics

	base     context.Context
	stopBase context.CancelFunc

	mu       sync.Mutex
	inflight map[string]*flight
	limiters map[string]*rate.Limiter
	closed   bool
}

type flight struct {
	url       string
	scheme    string
	cancel    context.CancelFunc
	owners    map[Owner]int
	done      chan struct{}
	outcome   Outcome
	cancelled bool
	// settled is set once the outcome has been committed; later requests
	// start a new fetch instead of joining this one.
	settled bool
}

// New constructs a coordinator.
func New(cfg Config, deps Deps) *Coordinator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	base, stop := context.WithCancel(pslog.ContextWithLogger(context.Background(), logger))
	return &Coordinator{
		cfg:      cfg,
		resolver: deps.Resolver,
		writer:   deps.Writer,
		log:      logger,
		metrics:  deps.Metrics,
		base:     base,
		stopBase: stop,
		inflight: make(map[string]*flight),
		limiters: make(map[string]*rate.Limiter),
	}
}

// Request starts a fetch for rawURL on behalf of owner, or attaches owner to
// the fetch already running for it. A URL with nothing in flight is always
// fetched again, even when the cache holds a failure for it.
func (c *Coordinator) Request(rawURL string, owner Owner) (*Handle, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if f := c.inflight[rawURL]; f != nil && !f.settled {
		f.owners[owner]++
		c.mu.Unlock()
		c.metrics.FetchDeduplicated()
		c.log.Trace("fetch attached", "url", rawURL, "tab", owner.Tab, "owners", len(f.owners))
		return &Handle{c: c, f: f, owner: owner, joined: true}, nil
	}
	c.mu.Unlock()

	u, err := schema.ParseURL(rawURL)
	if err != nil {
		return nil, err
	}
	if c.resolver == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnhandledScheme, u.Scheme)
	}
	capability, ok := c.resolver.Resolve(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: %s", schema.ErrUnhandledScheme, u.Scheme)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	// Lost a race with another Request for the same URL.
	if f := c.inflight[rawURL]; f != nil && !f.settled {
		f.owners[owner]++
		c.metrics.FetchDeduplicated()
		return &Handle{c: c, f: f, owner: owner, joined: true}, nil
	}
	ctx, cancel := context.WithTimeout(c.base, c.cfg.Timeout)
	f := &flight{
		url:    rawURL,
		scheme: u.Scheme,
		cancel: cancel,
		owners: map[Owner]int{owner: 1},
		done:   make(chan struct{}),
	}
	c.inflight[rawURL] = f
	limiter := c.limiterLocked(u.Host)
	c.metrics.FetchStarted()
	c.log.Debug("fetch start", "url", rawURL, "tab", owner.Tab)
	go c.run(ctx, f, capability, u, limiter)
	return &Handle{c: c, f: f, owner: owner}, nil
}

// Release detaches owner from every fetch. Fetches left without owners are
// cancelled and their completions dropped; the cached resource keeps the
// pending status it was given when the fetch started.
func (c *Coordinator) Release(owner Owner) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.inflight {
		if _, ok := f.owners[owner]; ok {
			delete(f.owners, owner)
			c.cancelIfOrphanedLocked(f)
		}
	}
}

// ReleaseTab detaches every generation of tab from every fetch.
func (c *Coordinator) ReleaseTab(tab schema.TabID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range c.inflight {
		for owner := range f.owners {
			if owner.Tab == tab {
				delete(f.owners, owner)
			}
		}
		c.cancelIfOrphanedLocked(f)
	}
}

// Inflight returns the number of running fetches.
func (c *Coordinator) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Close cancels every fetch and rejects new requests.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	for _, f := range c.inflight {
		c.cancelLocked(f)
	}
	c.mu.Unlock()
	c.stopBase()
}

func (c *Coordinator) cancelIfOrphanedLocked(f *flight) {
	if len(f.owners) == 0 {
		c.cancelLocked(f)
	}
}

func (c *Coordinator) cancelLocked(f *flight) {
	if f.cancelled {
		return
	}
	f.cancelled = true
	f.cancel()
	if c.inflight[f.url] == f {
		delete(c.inflight, f.url)
	}
	c.log.Debug("fetch cancelled", "url", f.url)
}

func (c *Coordinator) limiterLocked(host string) *rate.Limiter {
	if c.cfg.RatePerHost <= 0 {
		return nil
	}
	key := strings.ToLower(host)
	l := c.limiters[key]
	if l == nil {
		l = rate.NewLimiter(rate.Limit(c.cfg.RatePerHost), c.cfg.Burst)
		c.limiters[key] = l
	}
	return l
}

func (c *Coordinator) run(ctx context.Context, f *flight, capability protocol.Capability, u *url.URL, limiter *rate.Limiter) {
	started := time.Now()
	out := Outcome{URL: f.url}
	payload, err := c.download(ctx, capability, u, limiter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timeout after %s: %w", c.cfg.Timeout, err)
		}
		out.Err = err
	} else {
		out.Payload = payload
		out.MIMEType, out.Charset = sniff(payload)
	}
	c.finish(f, out, started)
}

func (c *Coordinator) download(ctx context.Context, capability protocol.Capability, u *url.URL, limiter *rate.Limiter) ([]byte, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	rc, err := capability.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() { _ = rc.Close() })
	defer func() {
		stop()
		_ = rc.Close()
	}()
	data, err := io.ReadAll(io.LimitReader(rc, c.cfg.MaxBytes+1))
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.cfg.MaxBytes {
		return nil, fmt.Errorf("%w (%d bytes)", ErrTooLarge, c.cfg.MaxBytes)
	}
	return data, nil
}

// finish commits the outcome unless the flight was cancelled, then wakes
// every handle. The flight stays registered until the commit is done so
// late requests attach to it instead of starting a duplicate.
func (c *Coordinator) finish(f *flight, out Outcome, started time.Time) {
	c.mu.Lock()
	cancelled := f.cancelled
	writer := c.writer
	c.mu.Unlock()

	committed := false
	if !cancelled && writer != nil {
		writer.CommitFetch(out, func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			committed = !f.cancelled
			f.settled = committed
			return committed
		})
	}

	c.mu.Lock()
	if !committed && (cancelled || f.cancelled) {
		out = Outcome{URL: f.url, Err: ErrCancelled}
	}
	f.outcome = out
	if c.inflight[f.url] == f {
		delete(c.inflight, f.url)
	}
	c.mu.Unlock()
	f.cancel()
	close(f.done)

	result := "ok"
	switch {
	case errors.Is(out.Err, ErrCancelled):
		result = "cancelled"
	case out.Err != nil:
		result = "failed"
	}
	c.metrics.FetchFinished(f.scheme, result, time.Since(started), len(out.Payload))
	log := c.log.With("url", f.url, "duration_ms", time.Since(started).Milliseconds())
	switch result {
	case "ok":
		log.Debug("fetch done", "bytes", len(out.Payload), "mime", out.MIMEType)
	case "cancelled":
		log.Debug("fetch discarded")
	default:
		log.Warn("fetch failed", "err", out.Err)
	}
}

func sniff(data []byte) (string, string) {
	mime := mimetype.Detect(data)
	mimeType := mime.String()
	if !strings.HasPrefix(mimeType, "text/") || len(data) == 0 {
		return mimeType, ""
	}
	if _, params, ok := strings.Cut(mimeType, "charset="); ok {
		return mimeType, strings.ToLower(strings.TrimSpace(params))
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return mimeType, ""
	}
	return mimeType, strings.ToLower(result.Charset)
}

// Handle is one caller's view of a fetch.
type Handle struct {
	c      *Coordinator
	f      *flight
	owner  Owner
	joined bool
	once   sync.Once
}

// URL returns the fetched URL.
func (h *Handle) URL() string { return h.f.url }

// Joined reports whether the request attached to an existing fetch.
func (h *Handle) Joined() bool { return h.joined }

// Done is closed when the fetch completes or is discarded.
func (h *Handle) Done() <-chan struct{} { return h.f.done }

// Wait blocks until the fetch completes or ctx ends.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.f.done:
		h.c.mu.Lock()
		out := h.f.outcome
		h.c.mu.Unlock()
		return out, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Release drops this handle's claim on the fetch. The fetch is cancelled
// when no claims remain.
func (h *Handle) Release() {
	h.once.Do(func() {
		c := h.c
		c.mu.Lock()
		defer c.mu.Unlock()
		if n, ok := h.f.owners[h.owner]; ok {
			if n <= 1 {
				delete(h.f.owners, h.owner)
			} else {
				h.f.owners[h.owner] = n - 1
			}
		}
		if c.inflight[h.f.url] == h.f {
			c.cancelIfOrphanedLocked(h.f)
		}
	})
}
