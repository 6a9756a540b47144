package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "checkouts_completed_total",
		Help: "Total number of checkouts persisted with a captured payment",
	})

	CheckoutsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "checkouts_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	CaptureAttemptsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payment_capture_attempts_total",
		Help: "Total number of gateway capture attempts",
	})

	CaptureOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_capture_outcomes_total",
		Help: "Gateway capture outcomes by status",
	}, []string{"status"})

	CaptureLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_capture_latency_seconds",
		Help:    "Latency of gateway capture calls",
		Buckets: prometheus.DefBuckets,
	})

	OrdersCancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_cancelled_total",
		Help: "Total number of cancelled orders",
	})

	ReconcileOrdersMissingPayment = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_orders_missing_payment_total",
		Help: "Completed orders found without a payment link by the reconciler",
	})

	ReconcileRepairsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_repairs_total",
		Help: "Reconciliation repair outcomes",
	}, []string{"outcome"})

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
