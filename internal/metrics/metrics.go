// Package metrics provides Prometheus metrics for the print pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SubmissionsTotal counts synchronous submit replies by result code
	// ("accepted" or an error code).
	SubmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagespool_submissions_total",
		Help: "Total number of print submissions, by result.",
	}, []string{"result"})

	// PagesRenderedTotal counts pages painted onto device surfaces by scaling strategy.
	PagesRenderedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagespool_pages_rendered_total",
		Help: "Total number of pages rendered, by scaling strategy.",
	}, []string{"strategy"})

	// OutcomesTotal counts terminal job classifications.
	OutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagespool_job_outcomes_total",
		Help: "Total number of terminal job outcomes, by kind.",
	}, []string{"outcome"})

	// ActiveMonitors tracks job status monitors currently polling.
	ActiveMonitors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagespool_active_job_monitors",
		Help: "Number of job status monitors currently polling.",
	})

	// PrinterOnline is 1 when the device was last seen online.
	PrinterOnline = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pagespool_printer_online",
		Help: "Printer online state (1 online, 0 offline), by device.",
	}, []string{"device"})

	// WebhookDeliveriesTotal counts webhook delivery attempts by result.
	WebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagespool_webhook_deliveries_total",
		Help: "Total number of webhook deliveries, by event and result.",
	}, []string{"event", "result"})

	ArchivedJobsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagespool_archived_jobs_total",
		Help: "Total number of finished jobs moved into archive files.",
	})
)

func RecordSubmission(result string) {
	SubmissionsTotal.WithLabelValues(result).Inc()
}

func RecordPage(strategy string) {
	PagesRenderedTotal.WithLabelValues(strategy).Inc()
}

func RecordOutcome(outcome string) {
	OutcomesTotal.WithLabelValues(outcome).Inc()
}

func SetPrinterOnline(device string, online bool) {
	v := 0.0
	if online {
		v = 1
	}
	PrinterOnline.WithLabelValues(device).Set(v)
}
