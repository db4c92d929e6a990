package connpool

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// DiscardReason is one of the reasons an allocated slot was released, per spec §4.2's
// state machine and §4.6's released{reason=...} counter.
type DiscardReason string

const (
	ReasonClosed          DiscardReason = "closed"
	ReasonConnectFailed   DiscardReason = "connect_failed"
	ReasonRequestFailed   DiscardReason = "request_failed"
	ReasonExpired         DiscardReason = "expired"
	ReasonKickedOut       DiscardReason = "kicked_out"
	reasonNoAvailableConn DiscardReason = "no_available_connection"
)

// Metrics is the namespace `fibers_http_client`, subsystem `connection_pool` surface
// from spec §4.6 and §6. Package-level vars mirror
// tternquist-beyond-ads-dns/internal/metrics/metrics.go's shape: plain vars, a
// sync.Once-guarded Register, small RecordX helpers.
var (
	metricsOnce sync.Once

	maxPoolSizeGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "max_pool_size",
		Help:      "Configured ceiling on allocated pool slots.",
	})
	allocatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "allocated",
		Help:      "Total allocated-slot reservations (Acquire calls not served from the pool).",
	})
	lentCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "lent",
		Help:      "Total connections handed to a caller, pooled or freshly connected.",
	})
	returnedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "returned",
		Help:      "Total connections returned recyclable and re-pooled.",
	})
	releasedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "released",
		Help:      "Total allocated slots released, by reason.",
	}, []string{"reason"})
	errorsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fibers_http_client",
		Subsystem: "connection_pool",
		Name:      "errors",
		Help:      "Total pool-level errors, by reason.",
	}, []string{"reason"})
)

// Register registers this package's metrics with reg. Safe to call more than once;
// only the first call registers, matching metrics.Init's sync.Once guard in
// tternquist-beyond-ads-dns.
func Register(reg *prometheus.Registry) {
	metricsOnce.Do(func() {
		reg.MustRegister(
			maxPoolSizeGauge,
			allocatedCounter,
			lentCounter,
			returnedCounter,
			releasedCounter,
			errorsCounter,
		)
	})
}

func recordAllocated()              { allocatedCounter.Inc() }
func recordLent()                   { lentCounter.Inc() }
func recordReturned()               { returnedCounter.Inc() }
func recordReleased(r DiscardReason) { releasedCounter.WithLabelValues(string(r)).Inc() }
func recordNoAvailableConnection()  { errorsCounter.WithLabelValues(string(reasonNoAvailableConn)).Inc() }
func setMaxPoolSizeGauge(n int)     { maxPoolSizeGauge.Set(float64(n)) }
