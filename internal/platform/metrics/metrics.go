// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GateDecisions counts feature gate decisions by feature and outcome.
	GateDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "gate",
		Name:      "decisions_total",
		Help:      "Feature gate decisions by feature and outcome.",
	}, []string{"feature", "outcome"})

	// UsageRecorded counts metered actions.
	UsageRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "usage",
		Name:      "recorded_total",
		Help:      "Metered feature actions recorded.",
	}, []string{"feature"})

	// OwnershipViolations counts records whose owner did not match the caller.
	OwnershipViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "storage",
		Name:      "ownership_violations_total",
		Help:      "Tenant records refused because the stored owner differed from the caller.",
	}, []string{"kind"})

	// StorageErrors counts soft storage failures by operation.
	StorageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "storage",
		Name:      "errors_total",
		Help:      "Tenant and blob storage failures by operation.",
	}, []string{"op"})

	// SessionFaults counts requests halted for a missing or invalid session.
	SessionFaults = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "auth",
		Name:      "session_faults_total",
		Help:      "Requests halted because no valid session was present.",
	})

	// JobRuns counts background job executions by job and result.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "worker",
		Name:      "job_runs_total",
		Help:      "Background job runs by job and result.",
	}, []string{"job", "result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "lawdesk",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "route", "status"})

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "lawdesk",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})
)

// ObserveRequest records one handled request. route is the router pattern,
// not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	requestDuration.WithLabelValues(method, route, code).Observe(elapsed.Seconds())
	requestTotal.WithLabelValues(method, route, code).Inc()
}

// JobResult maps an error to the job_runs result label.
func JobResult(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
