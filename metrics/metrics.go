// Package metrics exposes job processor counters to prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PartsPlaced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_parts_placed_total",
		Help: "Total parts placed.",
	})
	PartsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_parts_skipped_total",
		Help: "Total placements skipped by the operator or automatically.",
	})
	Cycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_cycles_total",
		Help: "Total planning cycles.",
	})
	NozzleTipChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_nozzle_tip_changes_total",
		Help: "Total nozzle tip changes.",
	})
	FeederDisabled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpnp_feeder_disabled_total",
		Help: "Times a feeder was disabled after failing.",
	}, []string{"feeder"})
	StepErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gpnp_step_errors_total",
		Help: "Job step failures by state.",
	}, []string{"state"})
	JobsFinished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gpnp_jobs_finished_total",
		Help: "Total jobs run to completion.",
	})
	StepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gpnp_step_duration_seconds",
		Help:    "Duration of each job step by state.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"state"})
)
