// Package web provides an optional http/https fetch capability. It is off by
// default so ordinary web links fall through to the system opener.
package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// Config configures the HTTP client.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Client fetches http and https URLs. One Client serves one scheme so each
// can be registered separately.
type Client struct {
	scheme string
	resty  *resty.Client
}

// New returns capabilities for http and https sharing one resty client.
func New(cfg Config) []*Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "burrow/1.0"
	}
	rc := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("User-Agent", cfg.UserAgent)
	return []*Client{
		{scheme: "http", resty: rc},
		{scheme: "https", resty: rc},
	}
}

// Scheme implements protocol.Capability.
func (c *Client) Scheme() string { return c.scheme }

// Fetch implements protocol.Capability. The body is streamed to the caller.
func (c *Client) Fetch(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	resp, err := c.resty.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return nil, err
	}
	body := resp.RawBody()
	if resp.StatusCode() >= 400 {
		if body != nil {
			_ = body.Close()
		}
		return nil, fmt.Errorf("http status %d", resp.StatusCode())
	}
	if body == nil {
		return io.NopCloser(eofReader{}), nil
	}
	return body, nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
