package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TaxReportsGenerated counts computed batch reports by outcome.
	TaxReportsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinfolio_tax_reports_generated_total",
			Help: "Number of tax report batches computed, by status.",
		},
		[]string{"status"},
	)

	// TaxReportDuration observes end-to-end batch computation time.
	TaxReportDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "coinfolio_tax_report_duration_seconds",
			Help:    "Time spent computing one tax report batch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// TransactionsImported counts normalized transactions inserted from uploads.
	TransactionsImported = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coinfolio_transactions_imported_total",
			Help: "Number of normalized transactions imported from CSV uploads.",
		},
	)
)

func init() {
	prometheus.MustRegister(TaxReportsGenerated, TaxReportDuration, TransactionsImported)
}
