// Package gopher implements the gopher:// fetch capability.
package gopher

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"pkt.systems/pslog"
)

// DefaultPort is the registered Gopher port.
const DefaultPort = "70"

// BuiltinHost is the host name served from embedded pages.
const BuiltinHost = "start"

//go:embed pages/*.gph
var pages embed.FS

// ErrNotFound is returned for unknown built-in selectors.
var ErrNotFound = errors.New("gopher: selector not found")

// Config configures the client.
type Config struct {
	DialTimeout time.Duration
	// DisableBuiltin lets gopher://start resolve over the network.
	DisableBuiltin bool
}

// Client is the gopher capability.
type Client struct {
	cfg    Config
	dialer net.Dialer
}

// New constructs a client.
func New(cfg Config) *Client {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 15 * time.Second
	}
	return &Client{cfg: cfg, dialer: net.Dialer{Timeout: cfg.DialTimeout}}
}

// Scheme implements protocol.Capability.
func (c *Client) Scheme() string { return "gopher" }

// Request is a decoded gopher URL.
type Request struct {
	Host     string
	Port     string
	ItemType byte
	Selector string
	Query    string
}

// ParseURL splits a gopher URL into host, item type, selector and search
// query. The path's first character is the item type; a tab separates the
// selector from a search query.
func ParseURL(u *url.URL) (Request, error) {
	if u == nil || !strings.EqualFold(u.Scheme, "gopher") {
		return Request{}, fmt.Errorf("gopher: unsupported url %v", u)
	}
	host := u.Hostname()
	if host == "" {
		return Request{}, errors.New("gopher: missing host")
	}
	port := u.Port()
	if port == "" {
		port = DefaultPort
	}
	req := Request{Host: host, Port: port, ItemType: '1'}
	path := strings.TrimPrefix(u.Path, "/")
	if path != "" {
		req.ItemType = path[0]
		path = path[1:]
	}
	if selector, query, ok := strings.Cut(path, "\t"); ok {
		path = selector
		req.Query = query
	}
	req.Selector = path
	return req, nil
}

// Line returns the request line sent to the server.
func (r Request) Line() string {
	if r.Query != "" {
		return r.Selector + "\t" + r.Query + "\r\n"
	}
	return r.Selector + "\r\n"
}

// Fetch implements protocol.Capability.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := ParseURL(u)
	if err != nil {
		return nil, err
	}
	log := pslog.Ctx(ctx).With("host", req.Host, "port", req.Port, "selector", req.Selector)
	if req.Host == BuiltinHost && !c.cfg.DisableBuiltin {
		data, err := builtinPage(req.Selector)
		if err != nil {
			return nil, err
		}
		log.Trace("gopher builtin page", "bytes", len(data))
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(req.Host, req.Port))
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	if _, err := io.WriteString(conn, req.Line()); err != nil {
		stop()
		_ = conn.Close()
		return nil, err
	}
	log.Debug("gopher request sent")
	return &stream{conn: conn, stop: stop}, nil
}

func builtinPage(selector string) ([]byte, error) {
	name := strings.Trim(selector, "/")
	if name == "" {
		name = "start"
	}
	if strings.ContainsAny(name, "/.") {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	data, err := pages.ReadFile("pages/" + name + ".gph")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, selector)
	}
	return data, nil
}

// stream closes the connection on Close or when the fetch context ends.
type stream struct {
	conn net.Conn
	stop func() bool
	once sync.Once
}

func (s *stream) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		err = s.conn.Close()
	})
	return err
}
