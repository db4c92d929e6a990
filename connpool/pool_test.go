package connpool

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"fibers-http-client/conn"
	"fibers-http-client/herr"
	"fibers-http-client/netaddr"
)

// listenerAddr starts a loopback listener that accepts and immediately parks
// connections (never closing them), and returns its resolved netaddr.Addr.
func listenerAddr(t *testing.T) (net.Listener, netaddr.Addr) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			_ = c
		}
	}()
	tcpAddr := ln.Addr().(*net.TCPAddr)
	return ln, netaddr.Addr{IP: tcpAddr.IP.String(), Port: tcpAddr.Port}
}

func testConfig(maxSize int) Config {
	cfg := DefaultConfig()
	cfg.MaxPoolSize = maxSize
	cfg.ConnectTimeout = time.Second
	cfg.TickInterval = 50 * time.Millisecond
	cfg.Logger = nil
	return cfg
}

func TestPoolReuseAccounting(t *testing.T) {
	ln, addr := listenerAddr(t)
	defer ln.Close()

	p := New(testConfig(2))
	defer p.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		c, err := p.Acquire(ctx, addr)
		if err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		c.SetState(conn.Recyclable)
		p.Reuse(addr, c)
	}

	// Give the actor a moment to drain the command channel before snapshotting.
	time.Sleep(50 * time.Millisecond)
	stats := p.Stats()
	if stats.Lent != 3 {
		t.Fatalf("expected lent == 3, got lent=%d allocated=%d", stats.Lent, stats.Allocated)
	}
	if stats.Returned != 3 {
		t.Fatalf("expected returned == 3, got %d", stats.Returned)
	}
	if stats.PoolSize > 2 {
		t.Fatalf("expected pool_size <= 2, got %d", stats.PoolSize)
	}
}

func TestPoolCapacityEviction(t *testing.T) {
	lnA, addrA := listenerAddr(t)
	defer lnA.Close()
	lnB, addrB := listenerAddr(t)
	defer lnB.Close()

	p := New(testConfig(1))
	defer p.Close()

	ctx := context.Background()
	cA, err := p.Acquire(ctx, addrA)
	if err != nil {
		t.Fatalf("acquire A: %v", err)
	}
	cA.SetState(conn.Recyclable)
	p.Reuse(addrA, cA)
	time.Sleep(50 * time.Millisecond)

	if _, err := p.Acquire(ctx, addrB); err != nil {
		t.Fatalf("acquire B: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	stats := p.Stats()
	if stats.Released[ReasonKickedOut] != 1 {
		t.Fatalf("expected exactly one kicked_out release, got %d", stats.Released[ReasonKickedOut])
	}
}

func TestPoolTemporarilyUnavailableWhenNothingToEvict(t *testing.T) {
	ln, addr := listenerAddr(t)
	defer ln.Close()

	p := New(testConfig(1))
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Acquire(ctx, addr); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	// The first connection is still lent (not reused), so the pool has nothing
	// pooled to evict and must fail the second acquire.
	_, err := p.Acquire(ctx, addr)
	if !herr.Is(err, herr.TemporarilyUnavailable) {
		t.Fatalf("expected TemporarilyUnavailable, got %v", err)
	}
}

func TestHandleConnectDoneDiscardsAbandonedConnect(t *testing.T) {
	p := &Pool{}
	st := newState(4)
	st.poolSize = 1 // the slot handleAcquire would have reserved before dialing
	cs := newCounters()
	cfg := testConfig(4)

	client, server := net.Pipe()
	defer server.Close()
	c := conn.New(client)

	abandoned := new(atomic.Bool)
	abandoned.Store(true)
	reply := make(chan acquireResult, 1)

	p.handleConnectDone(st, cs, cfg, connectDone{
		addr:      netaddr.Addr{IP: "127.0.0.1", Port: 1},
		conn:      c,
		reply:     reply,
		abandoned: abandoned,
	})

	if st.poolSize != 0 {
		t.Fatalf("expected the reserved slot to be released, got poolSize=%d", st.poolSize)
	}
	if c.State() != conn.Closed {
		t.Fatalf("expected the abandoned connection to be closed, got %s", c.State())
	}
	if cs.released[ReasonRequestFailed] != 1 {
		t.Fatalf("expected one request_failed release, got %d", cs.released[ReasonRequestFailed])
	}
	select {
	case <-reply:
		t.Fatal("expected nothing delivered to an abandoned reply channel")
	default:
	}
}

func TestHandleAcquireDiscardsAbandonedPooledLend(t *testing.T) {
	p := &Pool{}
	st := newState(4)
	cs := newCounters()
	cfg := testConfig(4)

	client, server := net.Pipe()
	defer server.Close()
	c := conn.New(client)
	addr := netaddr.Addr{IP: "127.0.0.1", Port: 1}
	st.poolSize = 1
	st.pool(addr, c)

	abandoned := new(atomic.Bool)
	abandoned.Store(true)
	reply := make(chan acquireResult, 1)

	p.handleAcquire(context.Background(), st, cs, cfg, acquireCmd{
		addr:      addr,
		reply:     reply,
		abandoned: abandoned,
	})

	if st.poolSize != 0 {
		t.Fatalf("expected the lent slot to be released, got poolSize=%d", st.poolSize)
	}
	if c.State() != conn.Closed {
		t.Fatalf("expected the abandoned connection to be closed, got %s", c.State())
	}
	if cs.released[ReasonRequestFailed] != 1 {
		t.Fatalf("expected one request_failed release, got %d", cs.released[ReasonRequestFailed])
	}
	select {
	case <-reply:
		t.Fatal("expected nothing delivered to an abandoned reply channel")
	default:
	}
}

func TestStatsInUseIsLentMinusReturned(t *testing.T) {
	cs := newCounters()
	cs.lent = 5
	cs.returned = 2
	stats := cs.snapshot(3)
	if got := stats.InUse(); got != 3 {
		t.Fatalf("expected InUse() == 3, got %d", got)
	}
}

func TestPoolReconfigureRaisesMaxPoolSize(t *testing.T) {
	lnA, addrA := listenerAddr(t)
	defer lnA.Close()
	lnB, addrB := listenerAddr(t)
	defer lnB.Close()

	p := New(testConfig(1))
	defer p.Close()

	ctx := context.Background()
	if _, err := p.Acquire(ctx, addrA); err != nil {
		t.Fatalf("acquire A: %v", err)
	}

	grown := testConfig(2)
	p.Reconfigure(grown)
	time.Sleep(50 * time.Millisecond)

	// With max_pool_size raised to 2, a second distinct-address acquire should no
	// longer need to evict anything to be admitted.
	if _, err := p.Acquire(ctx, addrB); err != nil {
		t.Fatalf("acquire B after reconfigure: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if stats := p.Stats(); stats.Released[ReasonKickedOut] != 0 {
		t.Fatalf("expected no eviction after raising max_pool_size, got %d", stats.Released[ReasonKickedOut])
	}
}

func TestPoolConnectFailureReleasesSlot(t *testing.T) {
	// Dial a port nothing listens on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := netaddr.Addr{IP: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}
	ln.Close() // nothing will accept here now

	p := New(testConfig(4))
	defer p.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := p.Acquire(ctx, addr); err == nil {
		t.Fatal("expected connect failure")
	}

	time.Sleep(50 * time.Millisecond)
	stats := p.Stats()
	if stats.PoolSize != 0 {
		t.Fatalf("expected the reserved slot to be released, pool_size=%d", stats.PoolSize)
	}
	if stats.Released[ReasonConnectFailed] != 1 {
		t.Fatalf("expected one connect_failed release, got %d", stats.Released[ReasonConnectFailed])
	}
}
