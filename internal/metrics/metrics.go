// Package metrics holds the Prometheus collectors for the journal service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	entriesSaved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_entries_saved_total",
		Help: "Journal entries appended, by source",
	}, []string{"source"})

	entriesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_entries_deleted_total",
		Help: "Journal entries deleted",
	})

	storageWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_storage_write_failures_total",
		Help: "Failed persists of a user collection, by backend",
	}, []string{"backend"})

	uploadRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_upload_rejections_total",
		Help: "Uploads rejected by validation, by error code",
	}, []string{"code"})

	captureOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_capture_outcomes_total",
		Help: "Capture sessions by outcome (saved, discarded, error code)",
	}, []string{"outcome"})

	summaryOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_summary_outcomes_total",
		Help: "Summary generations by generator and result",
	}, []string{"generator", "result"})

	summaryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_summary_duration_seconds",
		Help:    "Summary generation latency",
		Buckets: []float64{0.5, 1, 2, 3, 4, 6, 10, 20},
	}, []string{"generator"})

	activeWorkspaces = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journal_active_workspaces",
		Help: "User workspaces currently open",
	})
)

func EntrySaved(source string)          { entriesSaved.WithLabelValues(source).Inc() }
func EntryDeleted()                     { entriesDeleted.Inc() }
func StorageWriteFailed(backend string) { storageWriteFailures.WithLabelValues(backend).Inc() }
func UploadRejected(code string)        { uploadRejections.WithLabelValues(code).Inc() }
func CaptureOutcome(outcome string)     { captureOutcomes.WithLabelValues(outcome).Inc() }
func WorkspaceOpened()                  { activeWorkspaces.Inc() }
func WorkspaceClosed()                  { activeWorkspaces.Dec() }

// SummaryGenerated records one generation attempt.
func SummaryGenerated(generator string, ok bool, took time.Duration) {
	result := "ok"
	if !ok {
		result = "failed"
	}
	summaryOutcomes.WithLabelValues(generator, result).Inc()
	summaryDuration.WithLabelValues(generator).Observe(took.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
