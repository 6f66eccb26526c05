// Package metrics exports workflow outcomes to prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/expenseflow/approval-engine/internal/application/port"
)

const namespace = "approval_engine"

// WorkflowMetrics implements port.WorkflowMetrics
type WorkflowMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	remindersTotal    *prometheus.CounterVec
}

// NewWorkflowMetrics creates the collectors and registers them with reg
func NewWorkflowMetrics(reg prometheus.Registerer) (*WorkflowMetrics, error) {
	m := &WorkflowMetrics{
		operationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "operations_total",
				Help:      "Orchestrator operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "operation_duration_seconds",
				Help:      "Duration of orchestrator operations",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"operation"},
		),
		remindersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "reminder",
				Name:      "scanned_total",
				Help:      "Pending steps handled by the reminder scanner by outcome",
			},
			[]string{"outcome"},
		),
	}

	for _, c := range []prometheus.Collector{m.operationsTotal, m.operationDuration, m.remindersTotal} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *WorkflowMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *WorkflowMetrics) ObserveReminder(outcome string) {
	m.remindersTotal.WithLabelValues(outcome).Inc()
}

var _ port.WorkflowMetrics = (*WorkflowMetrics)(nil)
