package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	checkoutInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_checkout_initiated_total",
			Help: "Checkout attempts by result",
		},
		[]string{"result"},
	)

	reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storefront_reconciliation_total",
			Help: "Order reconciliation outcomes by state and failure kind",
		},
		[]string{"outcome", "kind"},
	)

	reconcileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "storefront_reconciliation_duration_seconds",
			Help:    "Time from the return page effect to a terminal state",
			Buckets: prometheus.DefBuckets,
		},
	)
)
