// Package metrics defines the service's prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Cycles counts completed scheduler cycles.
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postpilot_scheduler_cycles_total",
		Help: "number of scheduler polling cycles run",
	})

	// CycleErrors counts cycles skipped because the due query failed.
	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "postpilot_scheduler_cycle_errors_total",
		Help: "number of scheduler cycles skipped due to store errors",
	})

	// PublishAttempts counts delivery attempts by platform and outcome.
	PublishAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "postpilot_publish_attempts_total",
		Help: "number of delivery attempts by platform and outcome",
	}, []string{"platform", "outcome"})

	// PublishDuration observes how long publisher calls take.
	PublishDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "postpilot_publish_duration_seconds",
		Help:    "histogram of publisher call durations",
		Buckets: prometheus.ExponentialBucketsRange(0.01, 30, 15),
	}, []string{"platform"})
)
