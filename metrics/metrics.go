// Package metrics exposes Prometheus instrumentation for sync runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type SyncMetrics struct {
	SyncsTotal   *prometheus.CounterVec
	SyncDuration prometheus.Histogram

	EntitiesCreated   prometheus.Counter
	EntitiesObsoleted prometheus.Counter
	CommitsTotal      *prometheus.CounterVec
	LocaleFailures    *prometheus.CounterVec
}

// New registers the sync metric family with reg. Pass
// prometheus.DefaultRegisterer outside of tests.
func New(reg prometheus.Registerer) *SyncMetrics {
	factory := promauto.With(reg)
	return &SyncMetrics{
		SyncsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by project and result.",
		}, []string{"project", "result"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration of project sync runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		EntitiesCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "entities_created_total",
			Help:      "Entities created from VCS.",
		}),
		EntitiesObsoleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "entities_obsoleted_total",
			Help:      "Entities marked obsolete because they left VCS.",
		}),
		CommitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "commits_total",
			Help:      "Commits pushed to VCS by locale.",
		}, []string{"locale"}),
		LocaleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "crowdlate",
			Subsystem: "sync",
			Name:      "locale_failures_total",
			Help:      "Locales skipped in a run because of transient failures.",
		}, []string{"locale"}),
	}
}
