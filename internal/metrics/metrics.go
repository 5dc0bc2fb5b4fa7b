package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"canonsync/internal/domain"
)

var (
	syncRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canonsync_sync_runs_total",
		Help: "Sync passes by kind and outcome.",
	}, []string{"kind", "outcome"})

	syncItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canonsync_sync_items_total",
		Help: "Per-item dispositions across sync passes.",
	}, []string{"kind", "disposition"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "canonsync_sync_duration_seconds",
		Help:    "Wall-clock duration of sync passes.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})

	collisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canonsync_hash_collisions_total",
		Help: "Fingerprint collisions by resolution.",
	}, []string{"resolved"})
)

// ObserveSync records one completed (or failed) sync pass.
func ObserveSync(kind string, result *domain.SyncResult, err error, elapsed time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	syncRuns.WithLabelValues(kind, outcome).Inc()
	syncDuration.WithLabelValues(kind).Observe(elapsed.Seconds())

	if result == nil {
		return
	}
	syncItems.WithLabelValues(kind, "processed").Add(float64(result.Processed))
	syncItems.WithLabelValues(kind, "skipped").Add(float64(result.Skipped))
	syncItems.WithLabelValues(kind, "created").Add(float64(result.Created))
	syncItems.WithLabelValues(kind, "linked").Add(float64(result.Linked))
	syncItems.WithLabelValues(kind, "untracked").Add(float64(result.Untracked))
	syncItems.WithLabelValues(kind, "missing").Add(float64(result.Missing))
	syncItems.WithLabelValues(kind, "errored").Add(float64(result.ErrorCount()))

	for _, w := range result.CollisionWarnings {
		if w.Resolved {
			collisions.WithLabelValues("true").Inc()
		} else {
			collisions.WithLabelValues("false").Inc()
		}
	}
}
