// Package acquire defines the connection acquisition contract shared by the one-shot
// provider and the connection pool, per spec §4.1: a single capability that yields a
// scope-bound rented connection, whichever backs it.
package acquire

import (
	"context"

	"fibers-http-client/conn"
	"fibers-http-client/netaddr"
)

// Acquirer yields a connection to addr, pooled or freshly dialed depending on the
// implementation. Callers must call the returned Rented's Close exactly once.
type Acquirer interface {
	Acquire(ctx context.Context, addr netaddr.Addr) (*Rented, error)
}

// releaser is whatever a Rented reports its final disposition to on Close. The pool
// acquirer implements this with Reuse/Discard; OneShot's closes the connection.
type releaser interface {
	release(addr netaddr.Addr, c *conn.Connection)
}

// Rented exclusively owns a lent Connection, per spec §4.1's "scoped resource with
// guaranteed release." Close must be called on every exit path; it inspects the
// connection's disposition and forwards the outcome to whatever backs it.
type Rented struct {
	addr netaddr.Addr
	conn *conn.Connection
	rel  releaser
	done bool
}

// Conn exposes the underlying connection for the execute engine to drive I/O on.
func (r *Rented) Conn() *conn.Connection { return r.conn }

// Close classifies the connection's current state and releases it. Idempotent.
func (r *Rented) Close() {
	if r.done {
		return
	}
	r.done = true
	r.rel.release(r.addr, r.conn)
}
