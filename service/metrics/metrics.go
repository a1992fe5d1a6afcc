package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// It is passed explicitly to every component that records metrics;
// components treat a nil *Metrics as "metrics disabled".
type Metrics struct {
	// Solana RPC
	rpcCallsTotal     *prometheus.CounterVec
	rpcCallDuration   *prometheus.HistogramVec
	rpcRateLimitHits  *prometheus.CounterVec
	rpcRetries        *prometheus.CounterVec
	rpcRotations      *prometheus.CounterVec
	rpcExhaustedTotal *prometheus.CounterVec
	rpcSignaturesSeen *prometheus.HistogramVec
	txCacheLookups    *prometheus.CounterVec

	// Wallet pipeline
	walletsIdentified    prometheus.Histogram
	walletsAnalyzed      *prometheus.CounterVec
	walletProfit         prometheus.Histogram
	topTradersTotal      prometheus.Counter
	signaturesSkipped    *prometheus.CounterVec
	scanRunDuration      *prometheus.HistogramVec
	scanActivityDuration *prometheus.HistogramVec

	// Database
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP
	httpRequestDuration *prometheus.HistogramVec
	httpRequestsTotal   *prometheus.CounterVec

	// NATS
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		rpcCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_calls_total",
				Help: "Total number of Solana RPC attempts by method, outcome and endpoint",
			},
			[]string{"method", "status", "endpoint"},
		),
		rpcCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_call_duration_seconds",
				Help:    "Duration of Solana RPC attempts in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"method", "endpoint"},
		),
		rpcRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_rate_limit_hits_total",
				Help: "Total number of rate limit responses per endpoint",
			},
			[]string{"endpoint"},
		),
		rpcRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_retries_total",
				Help: "Total number of Solana RPC retry attempts",
			},
			[]string{"method", "reason"},
		),
		rpcRotations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_endpoint_rotations_total",
				Help: "Total number of endpoint rotations, labelled by the endpoint rotated away from",
			},
			[]string{"endpoint"},
		),
		rpcExhaustedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "solana_rpc_exhausted_total",
				Help: "Total number of calls that exhausted the endpoint pool",
			},
			[]string{"method"},
		),
		rpcSignaturesSeen: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "solana_rpc_signatures_per_call",
				Help:    "Number of signatures returned per getSignaturesForAddress call",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
			[]string{"source"},
		),
		txCacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "transaction_cache_lookups_total",
				Help: "Transaction detail cache lookups by result",
			},
			[]string{"result"},
		),

		walletsIdentified: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wallets_identified",
				Help:    "Number of wallets selected per identification pass",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		walletsAnalyzed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallets_analyzed_total",
				Help: "Total number of wallets analyzed by outcome",
			},
			[]string{"status"},
		),
		walletProfit: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "wallet_profit_ratio",
				Help:    "Distribution of computed wallet profit ratios",
				Buckets: []float64{-1, -0.5, -0.1, 0, 0.05, 0.1, 0.25, 0.5, 1, 5},
			},
		),
		topTradersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "top_traders_total",
				Help: "Total number of wallets classified as top traders",
			},
		),
		signaturesSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signatures_skipped_total",
				Help: "Signatures skipped during identification",
			},
			[]string{"reason"},
		),
		scanRunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_run_duration_seconds",
				Help:    "Duration of identify+analyze scan runs in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		scanActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scan_activity_duration_seconds",
				Help:    "Duration of scan workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"activity"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Solana RPC metric helpers

// RecordRPCCall records a single RPC attempt with duration.
func (m *Metrics) RecordRPCCall(method, status, endpoint string, duration float64) {
	m.rpcCallsTotal.WithLabelValues(method, status, endpoint).Inc()
	m.rpcCallDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// RecordRateLimitHit records a rate limit response from an endpoint.
func (m *Metrics) RecordRateLimitHit(endpoint string) {
	m.rpcRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordRPCRetry records a retry attempt.
func (m *Metrics) RecordRPCRetry(method, reason string) {
	m.rpcRetries.WithLabelValues(method, reason).Inc()
}

// RecordEndpointRotation records the pool moving away from endpoint.
func (m *Metrics) RecordEndpointRotation(endpoint string) {
	m.rpcRotations.WithLabelValues(endpoint).Inc()
}

// RecordEndpointsExhausted records a call that ran out of attempts.
func (m *Metrics) RecordEndpointsExhausted(method string) {
	m.rpcExhaustedTotal.WithLabelValues(method).Inc()
}

// RecordSignaturesPerCall records the number of signatures a listing returned.
func (m *Metrics) RecordSignaturesPerCall(source string, count float64) {
	m.rpcSignaturesSeen.WithLabelValues(source).Observe(count)
}

// RecordTxCacheLookup records a transaction cache hit or miss.
func (m *Metrics) RecordTxCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.txCacheLookups.WithLabelValues(result).Inc()
}

// Wallet pipeline metric helpers

// RecordWalletsIdentified records the size of an identified wallet set.
func (m *Metrics) RecordWalletsIdentified(count int) {
	m.walletsIdentified.Observe(float64(count))
}

// RecordSignatureSkipped records a signature dropped during identification.
func (m *Metrics) RecordSignatureSkipped(reason string) {
	m.signaturesSkipped.WithLabelValues(reason).Inc()
}

// RecordWalletAnalyzed records one wallet outcome ("active", "inactive", "failed").
func (m *Metrics) RecordWalletAnalyzed(status string) {
	m.walletsAnalyzed.WithLabelValues(status).Inc()
}

// RecordWalletProfit observes a profit ratio and counts top traders.
func (m *Metrics) RecordWalletProfit(profit float64, topTrader bool) {
	m.walletProfit.Observe(profit)
	if topTrader {
		m.topTradersTotal.Inc()
	}
}

// RecordScanRun records a complete scan run.
func (m *Metrics) RecordScanRun(status string, duration float64) {
	m.scanRunDuration.WithLabelValues(status).Observe(duration)
}

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity string, duration float64) {
	m.scanActivityDuration.WithLabelValues(activity).Observe(duration)
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
