package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CustodyMetrics bundles the collectors tracking custody engine activity:
// workflow throughput, latency, rejected requests and the pause guard state.
type CustodyMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	rejects    *prometheus.CounterVec
	pause      prometheus.Gauge
}

var (
	custodyMetricsOnce sync.Once
	custodyRegistry    *CustodyMetrics
)

// Custody returns the lazily-initialised metrics registry for the custody
// service.
func Custody() *CustodyMetrics {
	custodyMetricsOnce.Do(func() {
		custodyRegistry = &CustodyMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "engine",
				Name:      "operations_total",
				Help:      "Count of custody workflows segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "custody",
				Subsystem: "engine",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for custody workflows.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			rejects: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "custody",
				Subsystem: "engine",
				Name:      "rejects_total",
				Help:      "Count of custody workflows rejected before the pool call, segmented by operation and reason.",
			}, []string{"operation", "reason"}),
			pause: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "custody",
				Subsystem: "engine",
				Name:      "pause_engaged",
				Help:      "Indicates whether the custody pause guard is active (1) or not (0).",
			}),
		}
		prometheus.MustRegister(
			custodyRegistry.operations,
			custodyRegistry.latency,
			custodyRegistry.rejects,
			custodyRegistry.pause,
		)
	})
	return custodyRegistry
}

// Observe records the execution of a custody workflow.
func (m *CustodyMetrics) Observe(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	op := labelOperation(operation)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordReject increments the reject counter. Reasons should be stable strings
// such as "asset_not_listed" or "health_factor" so dashboards stay consistent.
func (m *CustodyMetrics) RecordReject(operation, reason string) {
	if m == nil {
		return
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "unspecified"
	}
	m.rejects.WithLabelValues(labelOperation(operation), reason).Inc()
}

// SetPause toggles the pause_engaged gauge.
func (m *CustodyMetrics) SetPause(engaged bool) {
	if m == nil {
		return
	}
	if engaged {
		m.pause.Set(1)
		return
	}
	m.pause.Set(0)
}

func labelOperation(operation string) string {
	trimmed := strings.TrimSpace(operation)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}
