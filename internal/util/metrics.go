package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_orders_placed_total",
		Help: "Total number of orders committed",
	})

	OrdersReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_orders_replayed_total",
		Help: "Total number of order requests answered from an earlier commit with the same idempotency key",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_orders_failed_total",
		Help: "Total number of rejected or failed order requests",
	}, []string{"kind"})

	OrderLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "canteen_order_latency_seconds",
		Help:    "Latency of the order operation, retries included",
		Buckets: prometheus.DefBuckets,
	})

	OrderRevenueTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_order_revenue_total",
		Help: "Sum of committed order prices in minor currency units",
	})

	TxConflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_tx_conflicts_total",
		Help: "Total number of units of work re-run after a concurrent update conflict",
	}, []string{"op"})

	OrderStateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_order_state_transitions_total",
		Help: "Total number of order state transitions",
	}, []string{"to"})

	OrdersCashedInTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_orders_cashed_in_total",
		Help: "Total number of orders marked as paid at the counter",
	})

	RechargesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_recharges_total",
		Help: "Total number of balance recharges",
	})

	RechargedAmountTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_recharged_amount_total",
		Help: "Sum of recharged amounts in minor currency units",
	})

	CatalogCacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_catalog_cache_requests_total",
		Help: "Catalog listing cache lookups",
	}, []string{"result"})

	StatsEventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "canteen_stats_events_applied_total",
		Help: "Total number of events folded into the global stats",
	}, []string{"event_type"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_outbox_published_total",
		Help: "Total number of outbox events handed to the broker",
	})

	OutboxPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "canteen_outbox_publish_failures_total",
		Help: "Total number of failed outbox publish attempts",
	})

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
