package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorggle_jobs_processed_total",
		Help: "Total number of lip-reading jobs processed, by status",
	}, []string{"status"})

	JobProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gorggle_job_processing_duration_seconds",
		Help:    "Duration of the lip-reading pipeline",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesSampledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gorggle_frames_sampled_total",
		Help: "Total number of frames sampled across all jobs",
	})

	FramesDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gorggle_frames_dropped_total",
		Help: "Total number of frames dropped before warm-up",
	})

	FramesSubstitutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gorggle_frames_substituted_total",
		Help: "Total number of mouth patches repeated after a per-frame failure",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "gorggle_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gorggle_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
