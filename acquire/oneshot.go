package acquire

import (
	"context"
	"net"

	"fibers-http-client/conn"
	"fibers-http-client/herr"
	"fibers-http-client/netaddr"
)

// OneShot dials a fresh TCP connection on every Acquire call. No pooling, no
// eviction — per spec §4.1, the connection is simply closed on release regardless
// of its final disposition.
type OneShot struct {
	Dialer net.Dialer
}

func (o *OneShot) Acquire(ctx context.Context, addr netaddr.Addr) (*Rented, error) {
	raw, err := o.Dialer.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, herr.Wrap(herr.Other, "acquire.OneShot", err)
	}
	return &Rented{addr: addr, conn: conn.New(raw), rel: oneShotReleaser{}}, nil
}

// oneShotReleaser always closes — a one-shot connection is never reused.
type oneShotReleaser struct{}

func (oneShotReleaser) release(_ netaddr.Addr, c *conn.Connection) {
	c.SetState(conn.Closed)
}
