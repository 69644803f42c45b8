package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/RhyVis/meta-manager/pkg/types"
)

var (
	// Catalogue metrics
	EntriesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meta_manager_entries_total",
			Help: "Total number of catalogue entries",
		},
	)

	EntriesDeployed = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meta_manager_entries_deployed",
			Help: "Number of entries with a tracked deployment",
		},
	)

	ArchiveBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "meta_manager_archive_bytes",
			Help: "Sum of calculated archive sizes in bytes",
		},
	)

	// Operation metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meta_manager_operations_total",
			Help: "Total number of library operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	OperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meta_manager_operation_duration_seconds",
			Help:    "Library operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Archive metrics
	DeployDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meta_manager_deploy_duration_seconds",
			Help:    "Time taken to deploy an entry in seconds, by archive format",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 180, 600},
		},
		[]string{"format"},
	)

	ArchivesCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "meta_manager_archives_created_total",
			Help: "Total number of archives created from folders",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(EntriesTotal)
	prometheus.MustRegister(EntriesDeployed)
	prometheus.MustRegister(ArchiveBytes)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(OperationDuration)
	prometheus.MustRegister(DeployDuration)
	prometheus.MustRegister(ArchivesCreated)
}

// Result maps an operation error to a low-cardinality label value
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, types.ErrNotFound):
		return "not_found"
	case errors.Is(err, types.ErrInvalidOperation):
		return "invalid_operation"
	case errors.Is(err, types.ErrWrongPassword):
		return "wrong_password"
	case errors.Is(err, types.ErrInvalidArchive), errors.Is(err, types.ErrUnsupportedFormat):
		return "invalid_archive"
	case errors.Is(err, types.ErrCodec):
		return "codec"
	case errors.Is(err, types.ErrStorage):
		return "storage"
	case errors.Is(err, types.ErrFilesystem):
		return "filesystem"
	default:
		return "error"
	}
}

// RecordOperation counts one finished operation
func RecordOperation(operation string, err error) {
	OperationsTotal.WithLabelValues(operation, Result(err)).Inc()
}

// WriteTextfile writes every registered metric to path in the Prometheus
// text format, for node_exporter's textfile collector.
func WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
