package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CampaignMetrics records claim pipeline activity: attempts, failures by
// reason, claim latency and batch distribution sizes.
type CampaignMetrics struct {
	claims   *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	batches  prometheus.Histogram
}

var (
	campaignMetricsOnce sync.Once
	campaignRegistry    *CampaignMetrics
)

// Metrics returns the lazily-initialised campaign metrics registry.
func Metrics() *CampaignMetrics {
	campaignMetricsOnce.Do(func() {
		campaignRegistry = &CampaignMetrics{
			claims: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offergate",
				Subsystem: "campaign",
				Name:      "claims_total",
				Help:      "Total claim attempts segmented by reward type and outcome.",
			}, []string{"reward_type", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "offergate",
				Subsystem: "campaign",
				Name:      "claim_failures_total",
				Help:      "Claim failures segmented by reward type and reason.",
			}, []string{"reward_type", "reason"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "offergate",
				Subsystem: "campaign",
				Name:      "claim_duration_seconds",
				Help:      "Claim pipeline latency segmented by reward type.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"reward_type"}),
			batches: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "offergate",
				Subsystem: "campaign",
				Name:      "batch_settled_size",
				Help:      "Users settled per automatic distribution batch.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			}),
		}
		prometheus.MustRegister(
			campaignRegistry.claims,
			campaignRegistry.failures,
			campaignRegistry.latency,
			campaignRegistry.batches,
		)
	})
	return campaignRegistry
}

// ObserveClaim records one claim attempt and its latency.
func (m *CampaignMetrics) ObserveClaim(rewardType string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		m.failures.WithLabelValues(rewardType, failureReason(err)).Inc()
	}
	m.claims.WithLabelValues(rewardType, outcome).Inc()
	m.latency.WithLabelValues(rewardType).Observe(elapsed.Seconds())
}

// ObserveBatch records the settled size of a distribution batch.
func (m *CampaignMetrics) ObserveBatch(settled int) {
	if m == nil {
		return
	}
	m.batches.Observe(float64(settled))
}

// failureReason collapses an error chain into a low-cardinality label: the
// sentinel text up to the first colon.
func failureReason(err error) string {
	msg := err.Error()
	if idx := strings.IndexByte(msg, ':'); idx > 0 {
		prefix := msg[:idx]
		if rest := strings.TrimSpace(msg[idx+1:]); rest != "" {
			if second := strings.IndexByte(rest, ':'); second > 0 {
				return prefix + ": " + strings.TrimSpace(rest[:second])
			}
			return prefix + ": " + rest
		}
		return prefix
	}
	return msg
}
