package autosave

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	flushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apply",
		Subsystem: "autosave",
		Name:      "flushes_total",
		Help:      "Autosave flush attempts by outcome.",
	}, []string{"result"})

	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "apply",
		Subsystem: "autosave",
		Name:      "flush_duration_seconds",
		Help:      "Time spent in the draft save request.",
		Buckets:   prometheus.DefBuckets,
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "apply",
		Subsystem: "autosave",
		Name:      "batch_drafts",
		Help:      "Drafts carried per save request.",
		Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
	})

	restoredDrafts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "apply",
		Subsystem: "autosave",
		Name:      "restored_drafts_total",
		Help:      "Drafts kept pending after a failed flush.",
	})

	droppedDrafts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "apply",
		Subsystem: "autosave",
		Name:      "dropped_drafts_total",
		Help:      "Drafts discarded after a failed flush.",
	})
)
