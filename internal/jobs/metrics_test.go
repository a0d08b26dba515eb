package jobmetrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func family(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func TestRunRecordsSuccess(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	clock := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	run := m.Track("monitoring:refresh")
	clock = clock.Add(250 * time.Millisecond)
	require.NoError(t, run.End(nil))
	m.AddRows("monitoring:refresh", 7)

	runs := family(t, reg, "autobid_jobs_total")
	require.NotNil(t, runs)
	require.Len(t, runs.GetMetric(), 1)
	assert.Equal(t, 1.0, runs.GetMetric()[0].GetCounter().GetValue())

	last := family(t, reg, "autobid_job_last_success_timestamp_seconds")
	require.NotNil(t, last)
	assert.Equal(t, float64(clock.Unix()), last.GetMetric()[0].GetGauge().GetValue())

	rows := family(t, reg, "autobid_job_rows_total")
	require.NotNil(t, rows)
	assert.Equal(t, 7.0, rows.GetMetric()[0].GetCounter().GetValue())

	hist := family(t, reg, "autobid_job_duration_seconds")
	require.NotNil(t, hist)
	assert.InDelta(t, 0.25, hist.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)
}

func TestRunFailureLeavesLastSuccessUnset(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	boom := errors.New("deadlock detected")
	assert.ErrorIs(t, m.Track("metrics:snapshot").End(boom), boom)

	assert.Nil(t, family(t, reg, "autobid_job_last_success_timestamp_seconds"))
	runs := family(t, reg, "autobid_jobs_total")
	require.NotNil(t, runs)
	var status string
	for _, label := range runs.GetMetric()[0].GetLabel() {
		if label.GetName() == "status" {
			status = label.GetValue()
		}
	}
	assert.Equal(t, "failure", status)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("x").End(boom), boom)
	assert.NoError(t, m.Track("x").End(nil))
	m.AddRows("x", 3)
}
