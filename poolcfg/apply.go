package poolcfg

import (
	"context"

	"fibers-http-client/connpool"
)

// Apply watches src and pushes every update it decodes to pool, converting against
// base for whichever fields the update leaves unset. It blocks until ctx is done or
// src's watch channel closes, so callers run it in its own goroutine alongside the
// pool it feeds.
func Apply(ctx context.Context, src *EtcdSource, pool *connpool.Pool, base connpool.Config) {
	for cfg := range src.Watch(ctx) {
		pool.Reconfigure(cfg.ToConnPool(base))
	}
}
