// Package metrics exposes the process-wide Prometheus collectors for the
// automation dispatcher, the connection hub and the HTTP rate limiter.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	automationDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coreops_automation_dispatches_total",
		Help: "Automation rule executions by terminal status",
	}, []string{"status"})

	automationDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coreops_automation_duplicates_suppressed_total",
		Help: "Rule executions absorbed because the idempotency key already succeeded or is in flight",
	})

	automationActionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coreops_automation_action_failures_total",
		Help: "Failed automation actions by action type",
	}, []string{"action"})

	automationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coreops_automation_rule_duration_seconds",
		Help:    "Wall time of one rule execution",
		Buckets: prometheus.DefBuckets,
	})

	automationQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_automation_queue_depth",
		Help: "Events waiting in the async dispatch queue",
	})

	hubConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "coreops_hub_connections",
		Help: "Live realtime connections across all workspaces",
	})

	hubRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coreops_hub_rejections_total",
		Help: "Realtime connections refused, by reason",
	}, []string{"reason"})

	hubDeadConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "coreops_hub_dead_connections_total",
		Help: "Connections removed after a failed send",
	})

	rateLimitDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "coreops_ratelimit_drops_total",
		Help: "Requests rejected by a rate limiter, by scope",
	}, []string{"scope"})
)

// duplicate count is also kept locally so the engine status endpoint can
// report it without scraping the registry.
var duplicatesSuppressed uint64

// rateLimitStats mirrors the drop counter for in-process snapshots.
type rateLimitStats struct {
	total   uint64
	mu      sync.Mutex
	byScope map[string]uint64
}

var rl rateLimitStats

func ObserveDispatch(status string, seconds float64) {
	automationDispatches.WithLabelValues(status).Inc()
	automationDuration.Observe(seconds)
}

func IncDuplicateSuppressed() {
	atomic.AddUint64(&duplicatesSuppressed, 1)
	automationDuplicates.Inc()
}

// DuplicatesSuppressed returns how many duplicates were absorbed since start.
func DuplicatesSuppressed() uint64 {
	return atomic.LoadUint64(&duplicatesSuppressed)
}

func IncActionFailure(action string) {
	automationActionFailures.WithLabelValues(action).Inc()
}

func SetQueueDepth(n int) {
	automationQueueDepth.Set(float64(n))
}

func SetHubConnections(n int) {
	hubConnections.Set(float64(n))
}

// IncHubRejection reasons: "capacity", "unauthorized".
func IncHubRejection(reason string) {
	hubRejections.WithLabelValues(reason).Inc()
}

func IncHubDeadConnection() {
	hubDeadConnections.Inc()
}

// IncRateLimitDrop increments drop counters for the given scope.
// An empty scope is recorded as "global".
func IncRateLimitDrop(scope string) {
	if scope == "" {
		scope = "global"
	}
	rateLimitDrops.WithLabelValues(scope).Inc()
	atomic.AddUint64(&rl.total, 1)
	rl.mu.Lock()
	if rl.byScope == nil {
		rl.byScope = make(map[string]uint64)
	}
	rl.byScope[scope]++
	rl.mu.Unlock()
}

// RateLimitSnapshot returns a copy of the current drop counters.
func RateLimitSnapshot() (total uint64, by map[string]uint64) {
	total = atomic.LoadUint64(&rl.total)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	by = make(map[string]uint64, len(rl.byScope))
	for k, v := range rl.byScope {
		by[k] = v
	}
	return total, by
}
