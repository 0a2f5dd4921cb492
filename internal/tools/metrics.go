package tools

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics tracks tool execution outcomes and latency.
type Metrics struct {
	executions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics creates and registers executor metrics. reg may be nil to
// skip registration (tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clipforge_tool_executions_total",
			Help: "Tool executions by tool name and outcome.",
		}, []string{"tool", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "clipforge_tool_execution_seconds",
			Help:    "Tool execution latency in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 3, 10),
		}, []string{"tool"}),
	}
	if reg != nil {
		reg.MustRegister(m.executions, m.duration)
	}
	return m
}

func (m *Metrics) observe(tool, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(tool, status).Inc()
	m.duration.WithLabelValues(tool).Observe(elapsed.Seconds())
}
