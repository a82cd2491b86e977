package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Backup metrics
	ChunksUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfs3backup_chunks_uploaded_total",
			Help: "Total number of chunks uploaded",
		},
		[]string{"filesystem", "snapshot"},
	)

	ChunksSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfs3backup_chunks_skipped_total",
			Help: "Total number of chunks skipped because a prior run already uploaded them",
		},
		[]string{"filesystem", "snapshot"},
	)

	BytesUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfs3backup_bytes_uploaded_total",
			Help: "Total bytes uploaded",
		},
		[]string{"filesystem", "snapshot"},
	)

	UploadRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfs3backup_upload_retries_total",
			Help: "Total number of chunk upload retries",
		},
		[]string{"filesystem", "snapshot"},
	)

	BackupDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zfs3backup_backup_duration_seconds",
			Help:    "Duration of backup runs",
			Buckets: prometheus.ExponentialBuckets(1, 2, 14),
		},
		[]string{"filesystem", "result"},
	)

	// Storage metrics
	StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "zfs3backup_storage_operations_total",
			Help: "Total storage operations",
		},
		[]string{"operation", "status"},
	)

	StorageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "zfs3backup_storage_latency_seconds",
			Help:    "Storage operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)
