package acquire

import (
	"context"

	"fibers-http-client/conn"
	"fibers-http-client/connpool"
	"fibers-http-client/netaddr"
)

// Pooled acquires connections from a *connpool.Pool, per spec §4.1's "cheaply
// clonable reference to a pool actor's command channel."
type Pooled struct {
	pool *connpool.Pool
}

// NewPooled wraps p as an Acquirer.
func NewPooled(p *connpool.Pool) *Pooled {
	return &Pooled{pool: p}
}

func (p *Pooled) Acquire(ctx context.Context, addr netaddr.Addr) (*Rented, error) {
	c, err := p.pool.Acquire(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &Rented{addr: addr, conn: c, rel: poolReleaser{pool: p.pool}}, nil
}

// poolReleaser implements the RentedConnection disposition table from spec §3: the
// execute engine must leave every lent connection in Recyclable or Closed before
// Close is called; InUse here means the engine aborted without classifying it.
type poolReleaser struct {
	pool *connpool.Pool
}

func (p poolReleaser) release(addr netaddr.Addr, c *conn.Connection) {
	switch c.State() {
	case conn.Recyclable:
		p.pool.Reuse(addr, c)
	case conn.Closed:
		p.pool.Discard(connpool.ReasonClosed)
	default: // InUse: the execute engine aborted mid-exchange without classifying it.
		c.SetState(conn.Closed)
		p.pool.Discard(connpool.ReasonRequestFailed)
	}
}
