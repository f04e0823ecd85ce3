package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	voteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pollboard_vote_requests_total",
		Help: "Vote cast/change requests received, labeled by outcome",
	}, []string{"status"})

	pollsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pollboard_polls_created_total",
		Help: "Polls created successfully",
	})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pollboard_login_attempts_total",
		Help: "Login attempts, labeled by outcome",
	}, []string{"status"})

	pointRepairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pollboard_point_repairs_total",
		Help: "Choice counters repaired by the reconciler",
	})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pollboard_reconcile_duration_seconds",
		Help:    "Time spent on one reconciliation pass",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveVoteRequest(status string) {
	voteRequestsTotal.WithLabelValues(status).Inc()
}

func IncPollCreated() {
	pollsCreatedTotal.Inc()
}

func ObserveLogin(status string) {
	loginAttemptsTotal.WithLabelValues(status).Inc()
}

func AddPointRepairs(n int) {
	pointRepairsTotal.Add(float64(n))
}

func ObserveReconcileDuration(seconds float64) {
	reconcileDuration.Observe(seconds)
}
