package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	commitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugbot_store_commits_total",
			Help: "Working sets merged into the namespace cache",
		},
		[]string{"namespace"},
	)

	writesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plugbot_store_writes_total",
			Help: "Background namespace file writes by result",
		},
		[]string{"result"},
	)

	writeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plugbot_store_write_duration_seconds",
			Help:    "Time spent persisting one namespace file",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)

	pendingWrites = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "plugbot_store_pending_writes",
			Help: "Enqueued namespace writes not yet completed",
		},
	)
)
