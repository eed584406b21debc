package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SalesCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sales_committed_total",
		Help: "Total number of committed sales",
	})

	SalesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_sales_failed_total",
		Help: "Total number of sale commits that failed",
	}, []string{"reason"})

	SaleAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_sale_amount_total",
		Help: "Sum of committed sale totals after discount",
	})

	SaleCommitLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pos_sale_commit_latency_seconds",
		Help:    "Latency of the sale commit transaction",
		Buckets: prometheus.DefBuckets,
	})

	ReceiptsWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_receipts_written_total",
		Help: "Total number of receipts written",
	})

	ReceiptsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pos_receipts_failed_total",
		Help: "Total number of receipts that could not be written",
	})

	CartOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_cart_operations_total",
		Help: "Total number of cart operations by operation and result",
	}, []string{"operation", "result"})

	CatalogOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_catalog_operations_total",
		Help: "Total number of catalog operations by operation and result",
	}, []string{"operation", "result"})

	EventsPublishFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pos_events_publish_failed_total",
		Help: "Total number of events that could not be published",
	}, []string{"event_type"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)

// ResultLabel maps an error to the "result" label value
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
