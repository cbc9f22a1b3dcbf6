package proc

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	feedFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "podfeed_feed_fetches_total",
		Help: "Number of feed fetches by result",
	}, []string{"result"})

	updateDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "podfeed_update_duration_seconds",
		Help:    "Duration of podcasts update",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	podcastsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "podfeed_podcasts_stored_total",
		Help: "Number of fetched podcasts stored",
	})
)
