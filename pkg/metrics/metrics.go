package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileadmin_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// PermissionChecks counts permission evaluations and their outcome (allow|deny|error).
	PermissionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileadmin_permission_checks_total",
			Help: "Total number of permission checks",
		},
		[]string{"permission", "result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fileadmin_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// FileUploads counts uploaded items by result (success|failure).
	FileUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fileadmin_file_uploads_total",
			Help: "Total number of uploaded files",
		},
		[]string{"result"},
	)

	// FileUploadBytes accumulates the size of stored uploads.
	FileUploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fileadmin_file_upload_bytes_total",
			Help: "Total bytes written to file storage",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fileadmin_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
