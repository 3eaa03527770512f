package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submitAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "apply",
		Subsystem: "submit",
		Name:      "attempts_total",
		Help:      "Submit attempts by the stage they stopped at.",
	}, []string{"stage"})

	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "apply",
		Subsystem: "session",
		Name:      "active",
		Help:      "Open form sessions held in memory.",
	})

	resumedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "apply",
		Subsystem: "session",
		Name:      "resumed_total",
		Help:      "Sessions opened from a saved snapshot.",
	})
)
