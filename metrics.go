package gandewa

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the call lifecycle,
// the resilience operators and the subscription engine. It is safe for
// concurrent use.
type MetricsCollector struct {
	callsTotal    *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	callsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	bulkheadInFlight *prometheus.GaugeVec

	deduplicationHits *prometheus.CounterVec

	hedgesTotal *prometheus.CounterVec

	subscriptionsActive    *prometheus.GaugeVec
	subscriptionEvents     *prometheus.CounterVec
	subscriptionReconnects *prometheus.CounterVec

	batchRequestsTotal *prometheus.CounterVec
	batchSize          *prometheus.HistogramVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a metrics collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, which keeps tests and multi-client processes isolated.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		callsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_calls_total",
				Help: "Total number of RPC calls made",
			},
			[]string{"path", "type", "code"},
		),
		callDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gandewa_call_duration_seconds",
				Help:    "Duration of RPC calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path", "type"},
		),
		callsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gandewa_calls_in_flight",
				Help: "Number of RPC calls currently in flight",
			},
			[]string{"path"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"path", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gandewa_circuit_breaker_state",
				Help: "Current state of circuit breaker (0=closed, 1=open, 2=half-open)",
			},
			[]string{"key"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gandewa_rate_limiter_remaining",
				Help: "Remaining capacity of the rate limiter",
			},
			[]string{"key"},
		),
		bulkheadInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gandewa_bulkhead_in_flight",
				Help: "Operations currently admitted by the bulkhead",
			},
			[]string{"path"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_deduplication_hits_total",
				Help: "Calls coalesced into an identical in-flight call",
			},
			[]string{"path"},
		),
		hedgesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_hedges_total",
				Help: "Speculative duplicate attempts launched",
			},
			[]string{"path"},
		),
		subscriptionsActive: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gandewa_subscriptions_active",
				Help: "Subscriptions currently connected",
			},
			[]string{"path"},
		),
		subscriptionEvents: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_subscription_events_total",
				Help: "Subscription events received by type",
			},
			[]string{"path", "type"},
		),
		subscriptionReconnects: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_subscription_reconnects_total",
				Help: "Reconnect attempts per subscription path",
			},
			[]string{"path", "attempt"},
		),
		batchRequestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_batch_requests_total",
				Help: "Individual requests executed through batch calls",
			},
			[]string{"mode", "outcome"},
		),
		batchSize: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gandewa_batch_size",
				Help:    "Number of requests per batch call",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
			},
			[]string{"mode"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "gandewa_errors_total",
				Help: "Errors surfaced to callers by code",
			},
			[]string{"path", "code"},
		),
	}
}

// RecordCallStart marks a call entering flight.
func (mc *MetricsCollector) RecordCallStart(path string) {
	mc.callsInFlight.WithLabelValues(path).Inc()
}

// RecordCallEnd marks a call leaving flight.
func (mc *MetricsCollector) RecordCallEnd(path string) {
	mc.callsInFlight.WithLabelValues(path).Dec()
}

// RecordCall records one completed call with its outcome code ("ok" on
// success) and duration.
func (mc *MetricsCollector) RecordCall(path string, procedureType ProcedureType, code string, duration time.Duration) {
	mc.callsTotal.WithLabelValues(path, string(procedureType), code).Inc()
	mc.callDuration.WithLabelValues(path, string(procedureType)).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func (mc *MetricsCollector) RecordRetry(path string, attempt int) {
	mc.retriesTotal.WithLabelValues(path, strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState publishes the breaker state for a key.
func (mc *MetricsCollector) RecordCircuitBreakerState(key string, state CircuitState) {
	mc.circuitBreakerState.WithLabelValues(key).Set(float64(state))
}

// RecordRateLimiterRemaining publishes remaining limiter capacity.
func (mc *MetricsCollector) RecordRateLimiterRemaining(key string, remaining int) {
	mc.rateLimiterTokens.WithLabelValues(key).Set(float64(remaining))
}

// RecordBulkheadInFlight publishes current bulkhead occupancy.
func (mc *MetricsCollector) RecordBulkheadInFlight(path string, inFlight int) {
	mc.bulkheadInFlight.WithLabelValues(path).Set(float64(inFlight))
}

// RecordDeduplicationHit records a call served by an in-flight twin.
func (mc *MetricsCollector) RecordDeduplicationHit(path string) {
	mc.deduplicationHits.WithLabelValues(path).Inc()
}

// RecordHedge records a speculative duplicate attempt.
func (mc *MetricsCollector) RecordHedge(path string) {
	mc.hedgesTotal.WithLabelValues(path).Inc()
}

// RecordSubscriptionActive marks a subscription as connected.
func (mc *MetricsCollector) RecordSubscriptionActive(path string) {
	mc.subscriptionsActive.WithLabelValues(path).Inc()
}

// RecordSubscriptionEnd marks a subscription as terminated.
func (mc *MetricsCollector) RecordSubscriptionEnd(path string) {
	mc.subscriptionsActive.WithLabelValues(path).Dec()
}

// RecordSubscriptionEvent records one inbound event by type.
func (mc *MetricsCollector) RecordSubscriptionEvent(path string, eventType EventType) {
	mc.subscriptionEvents.WithLabelValues(path, eventType.String()).Inc()
}

// RecordSubscriptionReconnect records one reconnect attempt.
func (mc *MetricsCollector) RecordSubscriptionReconnect(path string, attempt int) {
	mc.subscriptionReconnects.WithLabelValues(path, strconv.Itoa(attempt)).Inc()
}

// RecordBatchRequest records one request outcome inside a batch call.
func (mc *MetricsCollector) RecordBatchRequest(mode, outcome string) {
	mc.batchRequestsTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordBatchSize records the request count of one batch call.
func (mc *MetricsCollector) RecordBatchSize(mode string, size int) {
	mc.batchSize.WithLabelValues(mode).Observe(float64(size))
}

// RecordError records a surfaced error by its stable code.
func (mc *MetricsCollector) RecordError(path, code string) {
	mc.errorsTotal.WithLabelValues(path, code).Inc()
}
