package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("orders:archive_sweep").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("orders:archive_sweep").End(err), err)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orders:archive_sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("orders:archive_sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("orders:archive_sweep")))
}

func TestArchiveCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddArchived(3)
	m.AddArchived(0)
	m.AddArchiveFailures(1)
	m.IncSweepSkipped()

	require.Equal(t, 3.0, testutil.ToFloat64(m.archived))
	require.Equal(t, 1.0, testutil.ToFloat64(m.orderErr))
	require.Equal(t, 1.0, testutil.ToFloat64(m.skipped))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.AddArchived(2)
	m.IncSweepSkipped()
	require.NoError(t, m.Track("noop").End(nil))
}
