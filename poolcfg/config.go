// Package poolcfg supplies connpool.Config values, statically or pushed live from
// etcd, per spec §4.3's recognized options.
package poolcfg

import (
	"time"

	"fibers-http-client/connpool"
)

// Config is the wire shape stored in etcd for dynamic pool tuning: three of the
// four options spec §4.3 names (not the metrics namespace), with timeouts in
// milliseconds.
type Config struct {
	MaxPoolSize        int `json:"max_pool_size"`
	ConnectTimeoutMS   int `json:"connect_timeout_ms"`
	KeepaliveTimeoutMS int `json:"keepalive_timeout_ms"`
}

func msToDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// ToConnPool converts to connpool.Config, leaving TickInterval and Logger at
// base's values since neither is part of the etcd-tunable surface.
func (c Config) ToConnPool(base connpool.Config) connpool.Config {
	out := base
	if c.MaxPoolSize > 0 {
		out.MaxPoolSize = c.MaxPoolSize
	}
	if c.ConnectTimeoutMS > 0 {
		out.ConnectTimeout = msToDuration(c.ConnectTimeoutMS)
	}
	if c.KeepaliveTimeoutMS > 0 {
		out.KeepaliveTimeout = msToDuration(c.KeepaliveTimeoutMS)
	}
	return out
}
