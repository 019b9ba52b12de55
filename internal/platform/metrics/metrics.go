package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ballotRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabulator_ballot_requests_total",
		Help: "Ballot submissions received, labeled by outcome",
	}, []string{"status"})

	finalizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabulator_finalizations_total",
		Help: "Finalization attempts, labeled by outcome",
	}, []string{"status"})

	ballotsTalliedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabulator_ballots_tallied_total",
		Help: "Ballots counted by committed finalizations",
	})

	tallyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tabulator_tally_duration_seconds",
		Help:    "Time spent computing and committing one tally",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveBallotRequest(status string) {
	ballotRequestsTotal.WithLabelValues(status).Inc()
}

func ObserveFinalization(status string) {
	finalizationsTotal.WithLabelValues(status).Inc()
}

func AddBallotsTallied(n int) {
	ballotsTalliedTotal.Add(float64(n))
}

func ObserveTallyDuration(seconds float64) {
	tallyDuration.Observe(seconds)
}
