package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for consent enforcement.
type Metrics struct {
	VerificationsTotal *prometheus.CounterVec
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheBypasses      prometheus.Counter
	ConsentsStored     *prometheus.CounterVec
	ConsentsWithdrawn  *prometheus.CounterVec
	VerifyLatency      prometheus.Histogram
	StoreLatency       *prometheus.HistogramVec
}

// New registers and returns consent enforcement collectors.
func New() *Metrics {
	return &Metrics{
		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_consent_verifications_total",
			Help: "Total number of consent verifications, labeled by operation and result",
		}, []string{"operation", "result"}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_consent_cache_hits_total",
			Help: "Number of verifications served from cache",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_consent_cache_misses_total",
			Help: "Number of verifications that required a store read",
		}),
		CacheBypasses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "platewatch_consent_cache_bypasses_total",
			Help: "Number of cached verdicts ignored by the strict-mode bypass rule",
		}),
		ConsentsStored: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_consents_stored_total",
			Help: "Total number of consent decisions recorded, labeled by type and decision",
		}, []string{"type", "decision"}),
		ConsentsWithdrawn: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "platewatch_consents_withdrawn_total",
			Help: "Total number of consent withdrawals, labeled by type",
		}, []string{"type"}),
		VerifyLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "platewatch_consent_verify_latency_seconds",
			Help:    "Latency of consent verification in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		StoreLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "platewatch_consent_store_latency_seconds",
			Help:    "Latency of consent store operations in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"operation"}),
	}
}

func (m *Metrics) IncrementVerification(operation, result string) {
	m.VerificationsTotal.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) IncrementCacheHit()    { m.CacheHits.Inc() }
func (m *Metrics) IncrementCacheMiss()   { m.CacheMisses.Inc() }
func (m *Metrics) IncrementCacheBypass() { m.CacheBypasses.Inc() }

func (m *Metrics) IncrementConsentsStored(consentType, decision string) {
	m.ConsentsStored.WithLabelValues(consentType, decision).Inc()
}

func (m *Metrics) IncrementConsentsWithdrawn(consentType string) {
	m.ConsentsWithdrawn.WithLabelValues(consentType).Inc()
}

func (m *Metrics) ObserveVerifyLatency(seconds float64) {
	m.VerifyLatency.Observe(seconds)
}

// ObserveStoreLatency records the latency of a store operation.
func (m *Metrics) ObserveStoreLatency(operation string, seconds float64) {
	m.StoreLatency.WithLabelValues(operation).Observe(seconds)
}
