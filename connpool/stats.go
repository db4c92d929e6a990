package connpool

// Stats is a point-in-time read-only snapshot of pool counters, independent of the
// Prometheus registry — callers that want to assert on pool behavior in tests (the
// properties spec §8 phrases as "pool_size == ...") can read this directly instead of
// scraping metrics text.
type Stats struct {
	Allocated int
	Lent      int
	Returned  int
	Released  map[DiscardReason]int
	Errors    int
	PoolSize  int
}

// InUse is the number of connections lent to callers and not yet returned for
// re-pooling; a lent connection that is later discarded stays counted. It mirrors original_source/src/metrics.rs's
// in_use_connetions() (lent_connections - returned_connections).
func (s Stats) InUse() int {
	return s.Lent - s.Returned
}

// counters tracks the same events recordX sends to Prometheus, kept separately so
// the actor can answer a Stats() query without round-tripping through the registry.
// Only the actor goroutine ever touches this.
type counters struct {
	allocated int
	lent      int
	returned  int
	released  map[DiscardReason]int
	errors    int
}

func newCounters() *counters {
	return &counters{released: make(map[DiscardReason]int)}
}

func (c *counters) snapshot(poolSize int) Stats {
	released := make(map[DiscardReason]int, len(c.released))
	for k, v := range c.released {
		released[k] = v
	}
	return Stats{
		Allocated: c.allocated,
		Lent:      c.lent,
		Returned:  c.returned,
		Released:  released,
		Errors:    c.errors,
		PoolSize:  poolSize,
	}
}

type statsCmd struct {
	reply chan Stats
}

// Stats returns a snapshot of the pool's counters.
func (p *Pool) Stats() Stats {
	reply := make(chan Stats, 1)
	p.cmds <- statsCmd{reply: reply}
	return <-reply
}
