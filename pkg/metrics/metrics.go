// Package metrics exposes the service's Prometheus instruments.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_http_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration observes request latency by route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// TransfersTotal counts transfer outcomes by result kind.
	TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_transfers_total",
		Help: "Total transfer attempts by outcome.",
	}, []string{"outcome"})

	// TransferRetriesTotal counts lock-conflict retries.
	TransferRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_transfer_retries_total",
		Help: "Transfer attempts retried after a lock conflict.",
	})

	// BalanceCacheLookupsTotal counts balance reads by cache outcome.
	BalanceCacheLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_balance_cache_lookups_total",
		Help: "Balance cache lookups by outcome.",
	}, []string{"outcome"})

	// IdempotencyLookupsTotal counts idempotency checks by tier hit.
	IdempotencyLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_idempotency_lookups_total",
		Help: "Idempotency key lookups by resolution tier.",
	}, []string{"tier"})

	// IdempotencyKeysSweptTotal counts expired keys removed by the sweeper.
	IdempotencyKeysSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_idempotency_keys_swept_total",
		Help: "Expired idempotency keys deleted.",
	})
)

// ObserveRequest records one finished HTTP request.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
