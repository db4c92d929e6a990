package connpool

import (
	"net"
	"testing"
	"time"

	"fibers-http-client/conn"
	"fibers-http-client/netaddr"
)

func fakeConn(t *testing.T) *conn.Connection {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { server.Close() })
	return conn.New(client)
}

func TestLIFOPerAddress(t *testing.T) {
	s := newState(10)
	addr := netaddr.Addr{IP: "127.0.0.1", Port: 9000}

	c1, c2, c3 := fakeConn(t), fakeConn(t), fakeConn(t)
	s.pool(addr, c1)
	s.elapsed++
	s.pool(addr, c2)
	s.elapsed++
	s.pool(addr, c3)

	got, ok := s.lendPooled(addr)
	if !ok || got != c3 {
		t.Fatalf("expected c3 first, got %v ok=%v", got, ok)
	}
	got, ok = s.lendPooled(addr)
	if !ok || got != c2 {
		t.Fatalf("expected c2 second, got %v ok=%v", got, ok)
	}
	got, ok = s.lendPooled(addr)
	if !ok || got != c1 {
		t.Fatalf("expected c1 third, got %v ok=%v", got, ok)
	}
	if _, ok := s.lendPooled(addr); ok {
		t.Fatal("expected pool for addr to be empty")
	}
}

func TestGlobalOldestEviction(t *testing.T) {
	s := newState(10)
	addrA := netaddr.Addr{IP: "10.0.0.1", Port: 1}
	addrB := netaddr.Addr{IP: "10.0.0.2", Port: 2}

	cA := fakeConn(t)
	s.pool(addrA, cA) // pooledTime 0, seq 0 — globally oldest
	s.elapsed++
	cB := fakeConn(t)
	s.pool(addrB, cB) // pooledTime 1, seq 1

	dropped, ip, port, ok := s.dropOldestHeapEntry()
	if !ok {
		t.Fatal("expected an entry to evict")
	}
	if dropped != cA || ip != addrA.IP || port != addrA.Port {
		t.Fatalf("expected to evict A's connection, got ip=%s port=%d", ip, port)
	}
}

func TestKeepaliveExpiryAfterFourTicks(t *testing.T) {
	s := newState(10)
	addr := netaddr.Addr{IP: "127.0.0.1", Port: 9000}
	c := fakeConn(t)
	s.pool(addr, c) // pooledTime 0

	keepalive := 3 * time.Second
	for i := 0; i < 3; i++ {
		s.elapsed += time.Second
		if dropped := s.expired(keepalive); len(dropped) != 0 {
			t.Fatalf("tick %d: expected no expiry yet, got %d", i+1, len(dropped))
		}
	}
	s.elapsed += time.Second // 4th tick: elapsed=4s, pooledTime(0)+3s < 4s
	dropped := s.expired(keepalive)
	if len(dropped) != 1 || dropped[0] != c {
		t.Fatalf("expected exactly the one connection to expire on the 4th tick, got %v", dropped)
	}
	if _, ok := s.lendPooled(addr); ok {
		t.Fatal("expected the expired connection to be gone from the pool")
	}
}

func TestStaleHeapEntryIsLazilyDiscarded(t *testing.T) {
	s := newState(10)
	addr := netaddr.Addr{IP: "127.0.0.1", Port: 1}
	c1 := fakeConn(t)
	s.pool(addr, c1)

	// Remove c1 from pooled directly, bypassing the heap-aware removal path, to
	// simulate a stale heap entry the way a Reuse-then-re-Acquire cycle could leave
	// one behind transiently.
	lo, _ := s.addrRange(addr.IP, addr.Port)
	key := s.pooled[lo].key
	s.removeKey(key)

	if _, _, _, ok := s.dropOldestHeapEntry(); ok {
		t.Fatal("expected dropOldestHeapEntry to find nothing but a stale entry")
	}
	if s.timeouts.Len() != 0 {
		t.Fatalf("expected the stale heap entry to be discarded, heap has %d entries", s.timeouts.Len())
	}
}

func TestPoolSeqnoBreaksTiesAtSameTick(t *testing.T) {
	s := newState(10)
	addr := netaddr.Addr{IP: "127.0.0.1", Port: 1}
	c1, c2 := fakeConn(t), fakeConn(t)
	k1 := s.pool(addr, c1)
	k2 := s.pool(addr, c2)
	if k1.pooledTime != k2.pooledTime {
		t.Fatalf("expected same-tick insertion, got %v and %v", k1.pooledTime, k2.pooledTime)
	}
	if k1.seq >= k2.seq {
		t.Fatalf("expected strictly increasing seq, got %d then %d", k1.seq, k2.seq)
	}
}
