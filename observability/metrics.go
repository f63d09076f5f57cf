package observability

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// BridgeMetrics wraps collectors tracking transfers and their reconciliation.
type BridgeMetrics struct {
	transfers       *prometheus.CounterVec
	errors          *prometheus.CounterVec
	polls           *prometheus.CounterVec
	outcomes        *prometheus.CounterVec
	reconcileLength *prometheus.HistogramVec
	gatewayLatency  *prometheus.HistogramVec
}

var (
	bridgeMetricsOnce sync.Once
	bridgeRegistry    *BridgeMetrics
)

// Bridge returns the lazily-initialised metrics registry for the transfer
// flows.
func Bridge() *BridgeMetrics {
	bridgeMetricsOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hlbridge",
				Subsystem: "transfer",
				Name:      "total",
				Help:      "Count of transfer runs segmented by direction and outcome.",
			}, []string{"direction", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hlbridge",
				Subsystem: "transfer",
				Name:      "errors_total",
				Help:      "Count of transfer failures segmented by direction and reason.",
			}, []string{"direction", "reason"}),
			polls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hlbridge",
				Subsystem: "reconcile",
				Name:      "polls_total",
				Help:      "Count of ledger samples segmented by ledger and result.",
			}, []string{"ledger", "result"}),
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "hlbridge",
				Subsystem: "reconcile",
				Name:      "outcomes_total",
				Help:      "Count of reconciliation outcomes.",
			}, []string{"outcome"}),
			reconcileLength: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "hlbridge",
				Subsystem: "reconcile",
				Name:      "duration_seconds",
				Help:      "Time from baseline to reconciliation outcome.",
				Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 900},
			}, []string{"outcome"}),
			gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "hlbridge",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for exchange API calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"endpoint", "outcome"}),
		}
		prometheus.MustRegister(
			bridgeRegistry.transfers,
			bridgeRegistry.errors,
			bridgeRegistry.polls,
			bridgeRegistry.outcomes,
			bridgeRegistry.reconcileLength,
			bridgeRegistry.gatewayLatency,
		)
	})
	return bridgeRegistry
}

// RecordTransfer counts a finished transfer run.
func (m *BridgeMetrics) RecordTransfer(direction, outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(labelValue(direction), labelValue(outcome)).Inc()
}

// RecordError increments the error counter for the supplied reason.
func (m *BridgeMetrics) RecordError(direction, reason string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(labelValue(direction), labelValue(reason)).Inc()
}

// ObservePoll counts one ledger sample.
func (m *BridgeMetrics) ObservePoll(ledger string, failed bool) {
	if m == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	m.polls.WithLabelValues(labelValue(ledger), result).Inc()
}

// ObserveOutcome records how and how fast a reconciliation ended.
func (m *BridgeMetrics) ObserveOutcome(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := labelValue(outcome)
	m.outcomes.WithLabelValues(label).Inc()
	m.reconcileLength.WithLabelValues(label).Observe(elapsed.Seconds())
}

// ObserveGateway records the latency of one exchange API call.
func (m *BridgeMetrics) ObserveGateway(endpoint, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(labelValue(endpoint), labelValue(outcome)).Observe(elapsed.Seconds())
}

// Push sends every registered collector to a Prometheus Pushgateway. A
// single-shot command has no scrape window, so it pushes once on exit.
func Push(ctx context.Context, url, job string, labels map[string]string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	if strings.TrimSpace(job) == "" {
		job = "hlbridge"
	}
	pusher := push.New(url, job).Gatherer(prometheus.DefaultGatherer)
	for name, value := range labels {
		pusher = pusher.Grouping(name, value)
	}
	if err := pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func labelValue(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
