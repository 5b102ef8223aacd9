package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Alt-Text API Metrics
var (
	// Upload counters
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alttext",
			Subsystem: "api",
			Name:      "uploads_total",
			Help:      "Total image uploads",
		},
		[]string{"status"},
	)

	// Upload bytes counter
	UploadBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alttext",
			Subsystem: "api",
			Name:      "upload_bytes_total",
			Help:      "Total bytes uploaded",
		},
		[]string{"content_type"},
	)

	// Thumbnail outcomes
	ThumbnailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alttext",
			Subsystem: "api",
			Name:      "thumbnails_total",
			Help:      "Thumbnail generation outcomes",
		},
		[]string{"status"},
	)

	// Vision model call outcomes per model
	VisionCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alttext",
			Subsystem: "api",
			Name:      "vision_calls_total",
			Help:      "Vision model call outcomes",
		},
		[]string{"model", "status"},
	)

	// Vision call duration histogram
	VisionCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alttext",
			Subsystem: "api",
			Name:      "vision_call_duration_seconds",
			Help:      "Vision model call duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"model"},
	)

	// Batch sweep outcomes
	BatchRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alttext",
			Subsystem: "worker",
			Name:      "batch_records_total",
			Help:      "Records processed by the batch retry scanner",
		},
		[]string{"status"},
	)
)
