package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkflowMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewWorkflowMetrics(reg)
	require.NoError(t, err)

	m.ObserveOperation("approve", "success", 20*time.Millisecond)
	m.ObserveOperation("approve", "success", 30*time.Millisecond)
	m.ObserveOperation("approve", "conflict", time.Millisecond)
	m.ObserveReminder("sent")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("approve", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("approve", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remindersTotal.WithLabelValues("sent")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestNewWorkflowMetrics_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewWorkflowMetrics(reg)
	require.NoError(t, err)

	_, err = NewWorkflowMetrics(reg)
	assert.Error(t, err)
}
