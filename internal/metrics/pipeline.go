// Package metrics provides Prometheus metrics for the windprep pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts pipeline executions by outcome.
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windprep_runs_total",
		Help: "Total number of pipeline runs, by outcome (completed/failed).",
	}, []string{"outcome"})

	// StageDuration observes wall time per pipeline stage.
	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "windprep_stage_duration_seconds",
		Help:    "Wall clock duration of each pipeline stage.",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	}, []string{"stage"})

	// SamplesNullified counts samples cleared by each filter.
	SamplesNullified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windprep_samples_nullified_total",
		Help: "Total number of samples set to missing, by filter.",
	}, []string{"filter"})

	// SamplesImputed counts filled samples by method.
	SamplesImputed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "windprep_samples_imputed_total",
		Help: "Total number of missing samples filled, by method (regression/interpolation).",
	}, []string{"method"})

	// SamplesWritten tracks how many sample cells the last completed run
	// persisted (timesteps x features x turbines, missing cells included).
	SamplesWritten = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "windprep_samples_written",
		Help: "Sample cells written by the most recent completed run.",
	})

	// ContinuityGroups tracks how many continuity groups the last run kept.
	ContinuityGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "windprep_continuity_groups",
		Help: "Continuity groups surviving the split stage in the most recent run.",
	})

	// InputFiles counts raw files consumed per run.
	InputFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "windprep_input_files",
		Help: "Raw data files merged in the most recent run.",
	})

	// WatchTriggers counts filesystem events that scheduled a re-run.
	WatchTriggers = promauto.NewCounter(prometheus.CounterOpts{
		Name: "windprep_watch_triggers_total",
		Help: "Filesystem change events that scheduled a pipeline re-run.",
	})
)
