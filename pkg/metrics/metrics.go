package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	OutboxEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_enqueued_total",
			Help: "Total number of events appended to the outbox table (count)",
		},
		[]string{"event_type"},
	)

	OutboxSentTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_sent_total",
			Help: "Total number of outbox events relayed to the broker (count)",
		},
		[]string{"event_type"},
	)

	OutboxSendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_send_failures_total",
			Help: "Total number of failed outbox relay attempts (count)",
		},
		[]string{"event_type"},
	)

	OutboxBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_batch_duration_ms",
			Help:    "Duration of a single outbox relay poll cycle in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
	)

	OutboxPendingEvents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "outbox_pending_events",
			Help: "Number of unsent rows seen by the last relay poll (count)",
		},
	)

	EventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_processed_total",
			Help: "Total number of events processed by the consumer (count)",
		},
		[]string{"event_type", "status"},
	)

	EventsDuplicateTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_duplicate_total",
			Help: "Total number of duplicate events skipped via the processed-event ledger (count)",
		},
		[]string{"event_type"},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_dropped_total",
			Help: "Total number of malformed events dropped by the consumer (count)",
		},
		[]string{"reason"},
	)

	EventProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "event_processing_duration_ms",
			Help:    "Processing duration per consumed event in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"event_type"},
	)

	DependencyCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_calls_total",
			Help: "Total number of dependency client calls by outcome (count)",
		},
		[]string{"outcome"},
	)

	DependencyCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dependency_call_duration_ms",
			Help:    "End-to-end dependency call duration in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		},
		[]string{"outcome"},
	)

	DependencyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dependency_attempts_total",
			Help: "Total number of outbound HTTP attempts against the dependency (count)",
		},
		[]string{"status"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	BulkheadInFlight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "bulkhead_in_flight",
			Help: "Number of calls currently holding a bulkhead permit (count)",
		},
		[]string{"name"},
	)

	BulkheadRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bulkhead_rejections_total",
			Help: "Total number of calls rejected because the bulkhead was saturated (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	CustomerOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "customer_operations_total",
			Help: "Total number of customer CRUD operations (count)",
		},
		[]string{"operation", "status"},
	)

	CustomerCreateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "customer_create_duration_ms",
			Help:    "Duration of the customer create flow in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
	)
)

func RegisterAPIMetrics() {
	prometheus.MustRegister(OutboxEnqueuedTotal)
	prometheus.MustRegister(DependencyCallsTotal)
	prometheus.MustRegister(DependencyCallDuration)
	prometheus.MustRegister(DependencyAttemptsTotal)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
	prometheus.MustRegister(BulkheadInFlight)
	prometheus.MustRegister(BulkheadRejectionsTotal)
	prometheus.MustRegister(RateLimitRequestsTotal)
	prometheus.MustRegister(CustomerOperationsTotal)
	prometheus.MustRegister(CustomerCreateDuration)
}

func RegisterRelayMetrics() {
	prometheus.MustRegister(OutboxSentTotal)
	prometheus.MustRegister(OutboxSendFailuresTotal)
	prometheus.MustRegister(OutboxBatchDuration)
	prometheus.MustRegister(OutboxPendingEvents)
	registerBrokerMetricsOnce()
}

func RegisterWorkerMetrics() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(EventsDuplicateTotal)
	prometheus.MustRegister(EventsDroppedTotal)
	prometheus.MustRegister(EventProcessingDuration)
	registerBrokerMetricsOnce()
}

func registerBrokerMetricsOnce() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(KafkaMessagesReadTotal)
	prometheus.MustRegister(KafkaMessagesWrittenTotal)
}
