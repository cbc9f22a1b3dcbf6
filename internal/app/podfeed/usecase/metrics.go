package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podfeed_followed_generations_total",
		Help: "Number of times episode subscriptions were restarted for a new set of followed podcasts",
	})
	aggregationsComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podfeed_followed_aggregations_total",
		Help: "Number of times the latest followed episodes were recomputed",
	})
	podcastFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podfeed_followed_podcast_failures_total",
		Help: "Number of isolated failures of per-podcast episode subscriptions",
	})
)
