package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	idempotencyCounter    *prometheus.CounterVec
	transitionCounter     *prometheus.CounterVec
	staleNotifiedCounter  *prometheus.CounterVec
	notificationCounter   *prometheus.CounterVec
	balanceCacheCounter   *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		transitionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "operation_transitions_total",
			Help: "State machine transitions by operation type and target state",
		}, []string{"op_type", "state"})

		staleNotifiedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stale_pending_notified_total",
			Help: "Operations flagged by the pending watchdog",
		}, []string{"op_type"})

		notificationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "external_notifications_total",
			Help: "Outbound WhatsApp delivery outcomes by carrier",
		}, []string{"carrier", "result"})

		balanceCacheCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "balance_cache_events_total",
			Help: "Balance cache hits, misses and invalidations",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			idempotencyCounter,
			transitionCounter,
			staleNotifiedCounter,
			notificationCounter,
			balanceCacheCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

func IncrementTransition(opType, state string) {
	if transitionCounter == nil {
		return
	}
	transitionCounter.WithLabelValues(opType, state).Inc()
}

func IncrementStaleNotified(opType string) {
	if staleNotifiedCounter == nil {
		return
	}
	staleNotifiedCounter.WithLabelValues(opType).Inc()
}

func IncrementNotification(carrier, result string) {
	if notificationCounter == nil {
		return
	}
	notificationCounter.WithLabelValues(carrier, result).Inc()
}

func IncrementBalanceCache(outcome string) {
	if balanceCacheCounter == nil {
		return
	}
	balanceCacheCounter.WithLabelValues(outcome).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
