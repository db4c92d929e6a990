// Package ratelimit decorates an acquire.Acquirer with a token-bucket admission
// gate, so callers can cap the rate of new acquisitions independent of the pool's
// own max_pool_size admission control.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"fibers-http-client/acquire"
	"fibers-http-client/herr"
	"fibers-http-client/netaddr"
)

// Wrap returns an Acquirer that rejects with TemporarilyUnavailable once the token
// bucket is empty, rather than calling through to inner.
//
// The limiter is built once here, in the outer call, not per-Acquire — creating a
// fresh limiter per call would hand every request a full bucket and defeat rate
// limiting entirely.
func Wrap(inner acquire.Acquirer, r float64, burst int) acquire.Acquirer {
	return &limited{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(r), burst),
	}
}

type limited struct {
	inner   acquire.Acquirer
	limiter *rate.Limiter
}

func (l *limited) Acquire(ctx context.Context, addr netaddr.Addr) (*acquire.Rented, error) {
	if !l.limiter.Allow() {
		return nil, herr.New(herr.TemporarilyUnavailable, "ratelimit.Acquire", "acquisition rate limit exceeded")
	}
	return l.inner.Acquire(ctx, addr)
}
