// Package metrics holds the engine's prometheus collectors.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "encyclopedia"

type Metrics struct {
	Submissions        *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	ConsensusDecisions *prometheus.CounterVec
	ReviewsCompleted   prometheus.Counter
	Promotions         prometheus.Counter
	ReindexAttempts    prometheus.Counter
	ReindexFailures    prometheus.Counter
	ReindexDropped     prometheus.Counter
	ReindexDuration    prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers every collector on a fresh registry.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_submitted_total",
			Help:      "Revisions submitted, by whether they created the article.",
		}, []string{"created"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_resolutions_total",
			Help:      "Queue entries resolved, by outcome and resolver.",
		}, []string{"outcome", "source"}),
		ConsensusDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consensus_decisions_total",
			Help:      "Consensus evaluations that reached a decision, by decision.",
		}, []string{"decision"}),
		ReviewsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_reviews_completed_total",
			Help:      "Peer reviews submitted.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revisions_promoted_total",
			Help:      "Revisions promoted to current.",
		}),
		ReindexAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_reindex_attempts_total",
			Help:      "Calls made to the search provider while reindexing.",
		}),
		ReindexFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_reindex_failures_total",
			Help:      "Reindexes that failed after all retries.",
		}),
		ReindexDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_reindex_dropped_total",
			Help:      "Reindex requests dropped because the worker queue was full.",
		}),
		ReindexDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_reindex_duration_seconds",
			Help:      "Time spent reindexing one article.",
			Buckets:   prometheus.DefBuckets,
		}),
		gatherer: reg,
	}

	err := errors.Join(
		reg.Register(m.Submissions),
		reg.Register(m.Resolutions),
		reg.Register(m.ConsensusDecisions),
		reg.Register(m.ReviewsCompleted),
		reg.Register(m.Promotions),
		reg.Register(m.ReindexAttempts),
		reg.Register(m.ReindexFailures),
		reg.Register(m.ReindexDropped),
		reg.Register(m.ReindexDuration),
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// NewNop returns collectors that are not exported anywhere.
func NewNop() *Metrics {
	m, err := New()
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
