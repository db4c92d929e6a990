// Package fibershttp is the public façade: a Client ties an Acquirer to the request
// builder so callers don't have to wire httpreq.Builder themselves for every call.
//
// Call flow:
//
//	client.Get(ctx, url)
//	  → httpreq.New(acquirer, url)   → assemble the request
//	  → Builder.Get                   → acquire → execute → classify disposition
//	  → *wire.Response, error         → done
package fibershttp

import (
	"context"
	"io"
	"time"

	"fibers-http-client/acquire"
	"fibers-http-client/connpool"
	"fibers-http-client/httpreq"
	"fibers-http-client/wire"
)

// Client is the top-level entry point: a connection acquirer (one-shot or pooled)
// plus a default per-request timeout.
type Client struct {
	acquirer acquire.Acquirer
	timeout  time.Duration
}

// NewClient builds a Client backed by the given Acquirer (e.g. &acquire.OneShot{} or
// acquire.NewPooled(pool)).
func NewClient(a acquire.Acquirer) *Client {
	return &Client{acquirer: a}
}

// NewPooledClient is a convenience constructor that starts a connpool.Pool with cfg
// and wraps it as the Client's acquirer. Callers own the pool's lifecycle via the
// returned *connpool.Pool and should Close it when done.
func NewPooledClient(cfg connpool.Config) (*Client, *connpool.Pool) {
	pool := connpool.New(cfg)
	return &Client{acquirer: acquire.NewPooled(pool)}, pool
}

// WithTimeout sets the default per-request timeout applied to every call made
// through this Client. An earlier deadline already on the caller's context still
// takes precedence.
func (c *Client) WithTimeout(d time.Duration) *Client {
	c.timeout = d
	return c
}

func (c *Client) builder(targetURL string) *httpreq.Builder {
	b := httpreq.New(c.acquirer, targetURL)
	if c.timeout > 0 {
		b.Timeout(c.timeout)
	}
	return b
}

// Get issues a GET request.
func (c *Client) Get(ctx context.Context, targetURL string) (*wire.Response, error) {
	return c.builder(targetURL).Get(ctx)
}

// Head issues a HEAD request.
func (c *Client) Head(ctx context.Context, targetURL string) (*wire.Response, error) {
	return c.builder(targetURL).Head(ctx)
}

// Delete issues a DELETE request.
func (c *Client) Delete(ctx context.Context, targetURL string) (*wire.Response, error) {
	return c.builder(targetURL).Delete(ctx)
}

// Put issues a PUT request with body.
func (c *Client) Put(ctx context.Context, targetURL string, body io.Reader) (*wire.Response, error) {
	return c.builder(targetURL).Put(ctx, body)
}

// Post issues a POST request with body.
func (c *Client) Post(ctx context.Context, targetURL string, body io.Reader) (*wire.Response, error) {
	return c.builder(targetURL).Post(ctx, body)
}
