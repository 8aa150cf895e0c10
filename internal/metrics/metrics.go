// Package metrics exposes Prometheus counters for launches, lock cleanups and
// scheduled runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cronlock"

type Collector struct {
	launches     *prometheus.CounterVec
	lockCleanups *prometheus.CounterVec
	wrapperRuns  *prometheus.CounterVec
	runDuration  prometheus.Histogram
	syncErrors   prometheus.Counter
}

// NewCollector registers the metrics with reg. A nil reg means
// prometheus.DefaultRegisterer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		launches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "launches_total",
			Help:      "Manual run attempts by outcome",
		}, []string{"outcome"}),
		lockCleanups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_cleanups_total",
			Help:      "Lock files removed on inspection, by kind (stale, corrupt)",
		}, []string{"kind"}),
		wrapperRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wrapper_runs_total",
			Help:      "Scheduled wrapper invocations by result",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "launch_duration_seconds",
			Help:      "Time spent in a manual run request, grace period included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Jobs that failed to register during crontab synchronisation",
		}),
	}
	reg.MustRegister(c.launches, c.lockCleanups, c.wrapperRuns, c.runDuration, c.syncErrors)
	return c
}

func (c *Collector) RecordLaunch(outcome string, took time.Duration) {
	if c == nil {
		return
	}
	c.launches.WithLabelValues(outcome).Inc()
	c.runDuration.Observe(took.Seconds())
}

func (c *Collector) RecordLockCleanup(kind string) {
	if c == nil {
		return
	}
	c.lockCleanups.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordWrapperRun(result string) {
	if c == nil {
		return
	}
	c.wrapperRuns.WithLabelValues(result).Inc()
}

func (c *Collector) RecordSyncError() {
	if c == nil {
		return
	}
	c.syncErrors.Inc()
}
