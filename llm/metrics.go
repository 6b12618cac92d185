package llm

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Attempt outcomes recorded by Metrics.
const (
	OutcomeSuccess     = "success"
	OutcomeAuth        = "auth_error"
	OutcomeRateLimited = "rate_limited"
	OutcomeError       = "error"
)

// Metrics exposes per-provider attempt counters and latencies. A nil *Metrics
// records nothing.
type Metrics struct {
	attempts *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the chain collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "supportdesk",
			Subsystem: "llm",
			Name:      "attempts_total",
			Help:      "Provider attempts made by the fallback chain, by outcome.",
		}, []string{"provider", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "supportdesk",
			Subsystem: "llm",
			Name:      "attempt_duration_seconds",
			Help:      "Latency of provider attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	reg.MustRegister(m.attempts, m.latency)
	return m
}

func (m *Metrics) observe(provider string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(provider, outcomeOf(err)).Inc()
	m.latency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func outcomeOf(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	switch (Attempt{Err: err}).ErrorType() {
	case ErrorTypeAuthentication:
		return OutcomeAuth
	case ErrorTypeRateLimit:
		return OutcomeRateLimited
	default:
		return OutcomeError
	}
}
