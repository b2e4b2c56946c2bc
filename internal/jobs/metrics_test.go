package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("reconciliation:run").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("reconciliation:run").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reconciliation:run", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("reconciliation:run", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("reconciliation:run")))
}

func TestCountersIgnoreEmptyUpdates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.AddEntities("credit:recalculate_all", OutcomeProcessed, 3)
	m.AddEntities("credit:recalculate_all", OutcomeFailed, 0)
	m.AddSideEffects("reminders:overdue", "email", 2)
	m.SkipRun("reminders:overdue")

	assert.Equal(t, 3.0, testutil.ToFloat64(m.entities.WithLabelValues("credit:recalculate_all", OutcomeProcessed)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sideEffects.WithLabelValues("reminders:overdue", "email")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skippedRuns.WithLabelValues("reminders:overdue")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	require.NoError(t, m.Track("x").End(nil))
	m.AddEntities("x", OutcomeProcessed, 1)
	m.AddSideEffects("x", "y", 1)
	m.SkipRun("x")
}
