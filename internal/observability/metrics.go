package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for chain and step metrics.
const (
	OutcomeValue         = "value"
	OutcomeNull          = "null"
	OutcomeUnrepresented = "unrepresentable"
	OutcomeFailure       = "failure"
	OutcomeRejected      = "rejected"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotectl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotectl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	chainsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotectl",
			Subsystem: "chain",
			Name:      "executions_total",
			Help:      "Command chains executed by outcome.",
		},
		[]string{"dialect", "outcome"},
	)
	chainDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotectl",
			Subsystem: "chain",
			Name:      "duration_seconds",
			Help:      "Command chain execution duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dialect", "outcome"},
	)
	chainSteps = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotectl",
			Subsystem: "chain",
			Name:      "commands",
			Help:      "Commands per executed chain.",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"dialect"},
	)
	stepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotectl",
			Subsystem: "step",
			Name:      "invocations_total",
			Help:      "Individual command invocations.",
		},
		[]string{"dialect", "success"},
	)
	stepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "remotectl",
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Single command load and invoke duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"dialect", "success"},
	)
	receiverRejects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "remotectl",
			Subsystem: "receiver",
			Name:      "rejections_total",
			Help:      "Requests rejected before any command ran.",
		},
		[]string{"reason"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			chainsTotal, chainDuration, chainSteps,
			stepsTotal, stepDuration,
			receiverRejects,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordChain(dialect, outcome string, commands int, duration time.Duration) {
	RegisterMetrics()
	chainsTotal.WithLabelValues(dialect, outcome).Inc()
	chainDuration.WithLabelValues(dialect, outcome).Observe(duration.Seconds())
	chainSteps.WithLabelValues(dialect).Observe(float64(commands))
}

func RecordStep(dialect string, duration time.Duration, success bool) {
	RegisterMetrics()
	successLabel := strconv.FormatBool(success)
	stepsTotal.WithLabelValues(dialect, successLabel).Inc()
	stepDuration.WithLabelValues(dialect, successLabel).Observe(duration.Seconds())
}

func RecordReject(reason string) {
	RegisterMetrics()
	receiverRejects.WithLabelValues(reason).Inc()
}
