package connpool

import (
	"log"
	"time"
)

// Config is the recognized set of pool options from spec §4.3. A zero Config is not
// useful on its own — callers start from DefaultConfig and override.
type Config struct {
	// MaxPoolSize is the ceiling on allocated slots: pooled + lent.
	MaxPoolSize int
	// ConnectTimeout bounds a single TCP connect spawned on a pool miss.
	ConnectTimeout time.Duration
	// KeepaliveTimeout is how long an idle pooled connection survives before the
	// keepalive tick reclaims it.
	KeepaliveTimeout time.Duration
	// TickInterval is how often the actor advances elapsed and runs the
	// keepalive-expiry walk. Not part of spec §4.3's recognized options but
	// necessary to drive it; design default 1s per spec §4.2.
	TickInterval time.Duration
	// Logger receives one-line actor event logs (evictions, expirations, connect
	// failures), matching the teacher's occasional, unstructured log.Logger use. A
	// nil Logger discards these.
	Logger *log.Logger
}

// DefaultConfig returns the design defaults named throughout spec §4.2/§4.3:
// max_pool_size 4096, connect_timeout 5s, keepalive_timeout 10s, tick 1s.
func DefaultConfig() Config {
	return Config{
		MaxPoolSize:      4096,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTimeout: 10 * time.Second,
		TickInterval:     time.Second,
		Logger:           log.Default(),
	}
}
