package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	syncRunsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_service",
		Subsystem: "sync",
		Name:      "runs_total",
		Help:      "Number of challenge sync runs by outcome.",
	}, []string{"outcome"})

	activitiesFetchedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "challenge_service",
		Subsystem: "sync",
		Name:      "activities_fetched_total",
		Help:      "Number of activity records retrieved from the upstream source.",
	})

	progressUpsertGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "challenge_service",
		Subsystem: "progress",
		Name:      "last_upsert_timestamp_seconds",
		Help:      "Unix timestamp of the most recent progress row written to Postgres.",
	})

	tokenRefreshCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "challenge_service",
		Subsystem: "credentials",
		Name:      "token_refreshes_total",
		Help:      "Number of upstream token refresh attempts by outcome.",
	}, []string{"outcome"})

	syncDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "challenge_service",
		Subsystem: "sync",
		Name:      "duration_seconds",
		Help:      "End-to-end duration of challenge sync runs.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(syncRunsCounter, activitiesFetchedCounter, progressUpsertGauge, tokenRefreshCounter, syncDuration)
}

// RecordSyncRun counts a finished sync run and its duration.
func RecordSyncRun(outcome string, elapsed time.Duration) {
	syncRunsCounter.WithLabelValues(outcome).Inc()
	syncDuration.Observe(elapsed.Seconds())
}

// RecordActivitiesFetched adds to the fetched-record counter.
func RecordActivitiesFetched(n int) {
	if n > 0 {
		activitiesFetchedCounter.Add(float64(n))
	}
}

// RecordProgressUpserted updates the persistence watermark gauge.
func RecordProgressUpserted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	progressUpsertGauge.Set(float64(ts.Unix()))
}

// RecordTokenRefresh counts a refresh attempt.
func RecordTokenRefresh(ok bool) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	tokenRefreshCounter.WithLabelValues(outcome).Inc()
}
