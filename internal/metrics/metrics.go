// Package metrics holds the prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "relay"

var (
	JobsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_submitted_total",
		Help:      "Acquisition requests by admission outcome (queued, cache_hit, joined, rejected).",
	}, []string{"outcome"})

	JobsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finished_total",
		Help:      "Jobs that reached a terminal state, by state and error code.",
	}, []string{"state", "code"})

	JobAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_retries_total",
		Help:      "Pipeline attempts retried after a transient failure.",
	})

	ActiveJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_active",
		Help:      "Jobs currently owned by a worker.",
	})

	DiskReserved = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scratch_reserved_bytes",
		Help:      "Scratch disk reserved by in-flight jobs.",
	})

	PipelineSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_stage_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
	}, []string{"stage"})

	Transcodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transcodes_total",
		Help:      "Variant encodes by profile and result.",
	}, []string{"profile", "result"})

	VariantsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "variants_reaped_total",
		Help:      "Expired variants deleted by the reaper.",
	})

	StreamedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "streamed_bytes_total",
		Help:      "Bytes written by the stream endpoint, by source (artifact or variant).",
	}, []string{"source"})
)
