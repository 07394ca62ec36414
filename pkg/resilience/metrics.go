package resilience

import (
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sony/gobreaker"
)

const metricsNamespace = "tartanilla"

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Breaker state per upstream (0=closed, 0.5=half-open, 1=open)",
	}, []string{"breaker"})

	breakerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "calls_total",
		Help:      "Calls routed through a breaker, by outcome (ok, error, rejected)",
	}, []string{"breaker", "outcome"})

	breakerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "breaker",
		Name:      "transitions_total",
		Help:      "Breaker state transitions",
	}, []string{"breaker", "from", "to"})

	retryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "attempts_total",
		Help:      "Individual attempts made by retry loops",
	}, []string{"operation", "result"})

	retryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "operation_seconds",
		Help:      "Wall time of a retried operation across all attempts",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"operation", "result"})

	retryBackoff = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: "retry",
		Name:      "backoff_seconds",
		Help:      "Sleep between attempts",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	}, []string{"operation"})

	breakerSeq uint64
)

func nextBreakerName(base string) string {
	if base != "" {
		return base
	}
	return "breaker-" + strconv.FormatUint(atomic.AddUint64(&breakerSeq, 1), 10)
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 0.5
	case gobreaker.StateOpen:
		return 1
	}
	return -1
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func recordBreakerState(name string, state gobreaker.State) {
	breakerState.WithLabelValues(name).Set(stateValue(state))
}

func recordBreakerStateChange(name string, from, to gobreaker.State) {
	breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
	recordBreakerState(name, to)
}

func recordBreakerRequest(name string) {
	breakerCalls.WithLabelValues(name, "ok").Inc()
}

func recordBreakerFailure(name string) {
	breakerCalls.WithLabelValues(name, "error").Inc()
}

func recordBreakerRejection(name string) {
	breakerCalls.WithLabelValues(name, "rejected").Inc()
}

// RecordRetryAttempt counts one attempt of operation.
func RecordRetryAttempt(operation string, success bool) {
	retryAttempts.WithLabelValues(operation, outcome(success)).Inc()
}

// RecordRetryOperation observes the total time a retried operation took.
func RecordRetryOperation(operation string, durationSeconds float64, _ int, success bool) {
	retryDuration.WithLabelValues(operation, outcome(success)).Observe(durationSeconds)
}

// RecordRetryBackoff observes one backoff sleep.
func RecordRetryBackoff(operation string, durationSeconds float64) {
	retryBackoff.WithLabelValues(operation).Observe(durationSeconds)
}
