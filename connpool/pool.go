// Package connpool implements the keep-alive connection pool: a single-owner actor
// goroutine serializing Acquire/Reuse/Discard commands against the pool state in
// state.go, a background connect task per pool miss, and a keepalive ticker.
package connpool

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"fibers-http-client/conn"
	"fibers-http-client/herr"
	"fibers-http-client/netaddr"
)

// acquireCmd asks the actor for a connection to addr. reply carries either a
// *conn.Connection or an error, never both. The caller's own context governs only
// how long Acquire waits for reply (spec §4.4 step 6's single deadline over the
// whole chain); a pool miss's connect task is bounded by Config.ConnectTimeout
// instead, so a caller giving up early doesn't abort a connect another pending
// Acquire for the same address could still benefit from.
//
// abandoned is set by Acquire if its ctx fires before reply is delivered. Both
// delivery points (the immediate pooled-lend in handleAcquire and the post-dial
// handoff in handleConnectDone) check it first: if the caller already gave up,
// they discard the connection and release its slot instead of handing it to a
// reply nobody will ever read, per spec §5's balanced slot-accounting invariant.
type acquireCmd struct {
	addr      netaddr.Addr
	reply     chan acquireResult
	abandoned *atomic.Bool
}

type acquireResult struct {
	conn *conn.Connection
	err  error
}

// reuseCmd returns a recyclable connection for re-pooling.
type reuseCmd struct {
	addr netaddr.Addr
	conn *conn.Connection
}

// discardCmd releases one allocated slot without re-pooling.
type discardCmd struct {
	reason DiscardReason
}

// connectDone is the internal message a spawned connect task sends back to the
// actor once dialing addr finishes, one way or the other.
type connectDone struct {
	addr netaddr.Addr
	conn *conn.Connection
	err  error
	// reply and abandoned are the Acquire caller's own reply channel and
	// abandonment flag, threaded through so the actor can deliver the result (or
	// discard it) without a second round trip.
	reply     chan acquireResult
	abandoned *atomic.Bool
}

// Pool is the public handle to the pool actor's command channel — cheap to copy,
// per spec §4.1's "cheaply clonable reference to a pool actor's command channel."
type Pool struct {
	cmds     chan any
	configCh chan Config
	cancel   context.CancelFunc
}

// New starts the pool actor goroutine and returns a handle to it. Callers should
// call Close when the pool is no longer needed, to stop the keepalive ticker.
func New(cfg Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cmds:     make(chan any, 4096),
		configCh: make(chan Config),
		cancel:   cancel,
	}
	setMaxPoolSizeGauge(cfg.MaxPoolSize)
	go p.run(ctx, cfg)
	return p
}

// Reconfigure pushes a replacement Config to the actor, applied on its next select
// iteration alongside commands and the keepalive tick. poolcfg.Apply calls this for
// every update its EtcdSource reports.
func (p *Pool) Reconfigure(cfg Config) {
	p.configCh <- cfg
}

// Close stops the actor goroutine, ticker included. Commands sent afterwards are
// never processed: Acquire returns only once its ctx is done (as a Timeout error),
// and no separate error reports that the pool has been closed.
func (p *Pool) Close() { p.cancel() }

// Acquire sends an Acquire command and blocks for its reply, or until ctx is done.
func (p *Pool) Acquire(ctx context.Context, addr netaddr.Addr) (*conn.Connection, error) {
	reply := make(chan acquireResult, 1)
	abandoned := new(atomic.Bool)
	cmd := acquireCmd{addr: addr, reply: reply, abandoned: abandoned}
	select {
	case p.cmds <- cmd:
	case <-ctx.Done():
		return nil, herr.Wrap(herr.Timeout, "connpool.Acquire", ctx.Err())
	}
	select {
	case res := <-reply:
		return res.conn, res.err
	case <-ctx.Done():
		abandoned.Store(true)
		return nil, herr.Wrap(herr.Timeout, "connpool.Acquire", ctx.Err())
	}
}

// Reuse hands a recyclable connection back for re-pooling under addr.
func (p *Pool) Reuse(addr netaddr.Addr, c *conn.Connection) {
	p.cmds <- reuseCmd{addr: addr, conn: c}
}

// Discard releases one allocated slot, attributing it to reason.
func (p *Pool) Discard(reason DiscardReason) {
	p.cmds <- discardCmd{reason: reason}
}

// run is the actor loop: the single goroutine that ever touches st, per spec §4.2's
// single-writer model. Nothing else may read or mutate pool state directly.
func (p *Pool) run(ctx context.Context, cfg Config) {
	st := newState(cfg.MaxPoolSize)
	cs := newCounters()
	ticker := time.NewTicker(cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			st.elapsed += cfg.TickInterval
			for _, c := range st.expired(cfg.KeepaliveTimeout) {
				st.poolSize--
				c.SetState(conn.Closed)
				cs.released[ReasonExpired]++
				recordReleased(ReasonExpired)
				if cfg.Logger != nil {
					cfg.Logger.Printf("connpool: expired idle connection")
				}
			}

		case newCfg := <-p.configCh:
			cfg = newCfg
			setMaxPoolSizeGauge(cfg.MaxPoolSize)
			ticker.Reset(cfg.TickInterval)
			if cfg.Logger != nil {
				cfg.Logger.Printf("connpool: applied updated configuration")
			}

		case msg := <-p.cmds:
			switch m := msg.(type) {
			case acquireCmd:
				p.handleAcquire(ctx, st, cs, cfg, m)
			case reuseCmd:
				st.pool(m.addr, m.conn)
				cs.returned++
				recordReturned()
			case discardCmd:
				st.poolSize--
				cs.released[m.reason]++
				recordReleased(m.reason)
			case connectDone:
				p.handleConnectDone(st, cs, cfg, m)
			case statsCmd:
				m.reply <- cs.snapshot(st.poolSize)
			}
		}
	}
}

// handleAcquire implements spec §4.2's Acquire algorithm.
func (p *Pool) handleAcquire(ctx context.Context, st *state, cs *counters, cfg Config, m acquireCmd) {
	if c, ok := st.lendPooled(m.addr); ok {
		cs.lent++
		recordLent()
		if m.abandoned.Load() {
			st.poolSize--
			c.SetState(conn.Closed)
			cs.released[ReasonRequestFailed]++
			recordReleased(ReasonRequestFailed)
			return
		}
		m.reply <- acquireResult{conn: c}
		return
	}

	if st.poolSize >= cfg.MaxPoolSize {
		if dropped, _, _, ok := st.dropOldestHeapEntry(); ok {
			st.poolSize--
			dropped.SetState(conn.Closed)
			cs.released[ReasonKickedOut]++
			recordReleased(ReasonKickedOut)
			if cfg.Logger != nil {
				cfg.Logger.Printf("connpool: evicted oldest pooled connection to admit %s", m.addr)
			}
		} else {
			cs.errors++
			recordNoAvailableConnection()
			m.reply <- acquireResult{err: herr.New(herr.TemporarilyUnavailable, "connpool.Acquire", "pool exhausted, no idle connection to evict")}
			return
		}
	}

	st.poolSize++
	cs.allocated++
	recordAllocated()
	go p.connectTask(ctx, m.addr, cfg.ConnectTimeout, m.reply, m.abandoned)
}

// connectTask dials addr with a bounded timeout and reports the outcome back to the
// actor via the command channel, threading the caller's own reply channel and
// abandonment flag through so the actor can deliver (or discard) the result in one
// hop once it processes connectDone.
func (p *Pool) connectTask(ctx context.Context, addr netaddr.Addr, timeout time.Duration, reply chan acquireResult, abandoned *atomic.Bool) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	raw, err := d.DialContext(dialCtx, "tcp", addr.String())
	if err != nil {
		kind := herr.Other
		if errors.Is(dialCtx.Err(), context.DeadlineExceeded) {
			kind = herr.Timeout
		}
		p.cmds <- connectDone{addr: addr, err: herr.Wrap(kind, "connpool.connect", err), reply: reply, abandoned: abandoned}
		return
	}
	p.cmds <- connectDone{addr: addr, conn: conn.New(raw), reply: reply, abandoned: abandoned}
}

// handleConnectDone finishes an Acquire that missed the pool: on success it hands
// the new connection straight to the original caller; on failure it releases the
// slot it reserved and bumps connect_failed, per spec §4.2 step 2.
//
// The original caller may have already given up (its own ctx done, Acquire
// returned) by the time the dial finishes. m.abandoned catches that: if set, the
// freshly dialed connection is discarded and its slot released instead of being
// handed to a reply nobody will ever read, per spec §5's slot-accounting invariant.
func (p *Pool) handleConnectDone(st *state, cs *counters, cfg Config, m connectDone) {
	if m.err != nil {
		st.poolSize--
		cs.released[ReasonConnectFailed]++
		recordReleased(ReasonConnectFailed)
		if cfg.Logger != nil {
			cfg.Logger.Printf("connpool: connect to %s failed: %v", m.addr, m.err)
		}
		m.reply <- acquireResult{err: m.err}
		return
	}

	if m.abandoned.Load() {
		st.poolSize--
		m.conn.SetState(conn.Closed)
		cs.released[ReasonRequestFailed]++
		recordReleased(ReasonRequestFailed)
		if cfg.Logger != nil {
			cfg.Logger.Printf("connpool: caller abandoned Acquire for %s before connect finished", m.addr)
		}
		return
	}
	cs.lent++
	recordLent()
	m.reply <- acquireResult{conn: m.conn}
}
