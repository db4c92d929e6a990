package connpool

import (
	"container/heap"
	"sort"
	"time"

	"fibers-http-client/conn"
	"fibers-http-client/netaddr"
)

// poolKey orders pooled entries by (ip, port, pooledTime, seq), per spec §3: keys for
// a given peer form a contiguous range in the sorted store, and the seq tie-break
// keeps same-tick insertions distinguishable.
type poolKey struct {
	ip         string
	port       int
	pooledTime time.Duration
	seq        uint64
}

func (k poolKey) less(o poolKey) bool {
	if k.ip != o.ip {
		return k.ip < o.ip
	}
	if k.port != o.port {
		return k.port < o.port
	}
	if k.pooledTime != o.pooledTime {
		return k.pooledTime < o.pooledTime
	}
	return k.seq < o.seq
}

// sameAddr reports whether two keys belong to the same peer address.
func (k poolKey) sameAddr(ip string, port int) bool {
	return k.ip == ip && k.port == port
}

type pooledEntry struct {
	key  poolKey
	conn *conn.Connection
}

// timeoutEntry is the eviction heap's element, per spec §3. There is at most one
// heap entry per peer address at any time — it tracks that peer's oldest pooled
// connection.
type timeoutEntry struct {
	pooledTime time.Duration
	ip         string
	port       int
	seq        uint64
}

// timeoutHeap is a container/heap min-heap ordered so the globally oldest pooled
// connection (smallest pooledTime, ties broken by seq) is always on top. No
// ecosystem priority-queue library appears anywhere in the retrieval pack, so this
// is the standard library's own sanctioned tool for the job (see DESIGN.md).
type timeoutHeap []timeoutEntry

func (h timeoutHeap) Len() int { return len(h) }
func (h timeoutHeap) Less(i, j int) bool {
	if h[i].pooledTime != h[j].pooledTime {
		return h[i].pooledTime < h[j].pooledTime
	}
	return h[i].seq < h[j].seq
}
func (h timeoutHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timeoutHeap) Push(x any)   { *h = append(*h, x.(timeoutEntry)) }
func (h *timeoutHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// state is the pure data structure from spec §3. It is mutated exclusively by the
// pool actor's goroutine (see pool.go) — nothing else ever touches it, so it needs
// no locking of its own.
type state struct {
	pooled   []pooledEntry // sorted by key.less
	timeouts timeoutHeap
	poolSize int
	maxSize  int
	elapsed  time.Duration
	seqno    uint64
}

func newState(maxSize int) *state {
	return &state{maxSize: maxSize}
}

// addrRange returns the half-open index range of s.pooled belonging to (ip, port).
func (s *state) addrRange(ip string, port int) (lo, hi int) {
	lo = sort.Search(len(s.pooled), func(i int) bool {
		k := s.pooled[i].key
		return k.ip > ip || (k.ip == ip && k.port >= port)
	})
	hi = sort.Search(len(s.pooled), func(i int) bool {
		k := s.pooled[i].key
		return k.ip > ip || (k.ip == ip && k.port > port)
	})
	return lo, hi
}

// lendPooled implements "Attempt lend_pooled(addr)" from spec §4.2 step 1: among
// pooled entries for addr, remove and return the most recently inserted one (LIFO).
func (s *state) lendPooled(addr netaddr.Addr) (*conn.Connection, bool) {
	lo, hi := s.addrRange(addr.IP, addr.Port)
	if lo == hi {
		return nil, false
	}
	// Entries within [lo, hi) are sorted by pooledTime ascending, so the most
	// recently inserted one is at hi-1.
	idx := hi - 1
	c := s.pooled[idx].conn
	s.pooled = append(s.pooled[:idx], s.pooled[idx+1:]...)
	return c, true
}

// pool implements spec §4.2's "pool_connection(addr, conn)": allocate a fresh key,
// push a TimeoutEntry if this is the peer's first pooled entry, insert in order.
// It does not touch poolSize — the slot was already allocated at Acquire time.
func (s *state) pool(addr netaddr.Addr, c *conn.Connection) poolKey {
	hadEntries := func() bool {
		lo, hi := s.addrRange(addr.IP, addr.Port)
		return lo != hi
	}()

	key := poolKey{ip: addr.IP, port: addr.Port, pooledTime: s.elapsed, seq: s.seqno}
	s.seqno++

	idx := sort.Search(len(s.pooled), func(i int) bool { return key.less(s.pooled[i].key) })
	s.pooled = append(s.pooled, pooledEntry{})
	copy(s.pooled[idx+1:], s.pooled[idx:])
	s.pooled[idx] = pooledEntry{key: key, conn: c}

	if !hadEntries {
		heap.Push(&s.timeouts, timeoutEntry{pooledTime: key.pooledTime, ip: key.ip, port: key.port, seq: key.seq})
	}
	return key
}

// removeKey deletes the pooled entry for key, if present, returning whether it was
// found. It does not touch the heap, so a removed peer's heap entry goes stale.
func (s *state) removeKey(k poolKey) bool {
	lo, hi := s.addrRange(k.ip, k.port)
	for i := lo; i < hi; i++ {
		if s.pooled[i].key == k {
			s.pooled = append(s.pooled[:i], s.pooled[i+1:]...)
			return true
		}
	}
	return false
}

// oldestForAddr returns the oldest remaining pooled entry for (ip, port), if any —
// used after removing the peer's current oldest to re-seed the heap.
func (s *state) oldestForAddr(ip string, port int) (poolKey, bool) {
	lo, hi := s.addrRange(ip, port)
	if lo == hi {
		return poolKey{}, false
	}
	return s.pooled[lo].key, true // ascending pooledTime: lo is oldest
}

// hasKey reports whether k still refers to a live pooled entry.
func (s *state) hasKey(k poolKey) bool {
	lo, hi := s.addrRange(k.ip, k.port)
	for i := lo; i < hi; i++ {
		if s.pooled[i].key == k {
			return true
		}
	}
	return false
}

// cleanStaleTop pops and discards heap entries that no longer correspond to a live
// pooled entry, so that afterward either the heap is empty or its top is the true
// globally-oldest live entry. Spec §9 explicitly sanctions tolerating stale entries
// and discarding them lazily on pop rather than eagerly invalidating them on removal.
func (s *state) cleanStaleTop() {
	for s.timeouts.Len() > 0 {
		top := s.timeouts[0]
		k := poolKey{ip: top.ip, port: top.port, pooledTime: top.pooledTime, seq: top.seq}
		if s.hasKey(k) {
			return
		}
		heap.Pop(&s.timeouts)
	}
}

// dropOldestHeapEntry removes the globally oldest live pooled entry and re-seeds
// the heap with its peer's next-oldest entry (if any), per spec §4.2's
// discard_oldest / tick-expiry shared routine. ok is false once the pool is empty.
func (s *state) dropOldestHeapEntry() (c *conn.Connection, ip string, port int, ok bool) {
	s.cleanStaleTop()
	if s.timeouts.Len() == 0 {
		return nil, "", 0, false
	}
	top := heap.Pop(&s.timeouts).(timeoutEntry)
	k := poolKey{ip: top.ip, port: top.port, pooledTime: top.pooledTime, seq: top.seq}

	lo, hi := s.addrRange(k.ip, k.port)
	idx := -1
	for i := lo; i < hi; i++ {
		if s.pooled[i].key == k {
			idx = i
			break
		}
	}
	// cleanStaleTop already guaranteed the popped top matches a live entry.
	c = s.pooled[idx].conn
	s.pooled = append(s.pooled[:idx], s.pooled[idx+1:]...)

	if next, ok := s.oldestForAddr(k.ip, k.port); ok {
		heap.Push(&s.timeouts, timeoutEntry{pooledTime: next.pooledTime, ip: next.ip, port: next.port, seq: next.seq})
	}
	return c, k.ip, k.port, true
}

// expired walks the heap, removing and returning every pooled entry whose
// pooledTime + keepaliveTimeout < s.elapsed, per spec §4.2's keepalive tick.
func (s *state) expired(keepaliveTimeout time.Duration) []*conn.Connection {
	var dropped []*conn.Connection
	for {
		s.cleanStaleTop()
		if s.timeouts.Len() == 0 {
			break
		}
		if s.timeouts[0].pooledTime+keepaliveTimeout >= s.elapsed {
			break
		}
		c, _, _, ok := s.dropOldestHeapEntry()
		if !ok {
			break
		}
		dropped = append(dropped, c)
	}
	return dropped
}
