package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry_notifier/internal/domain/run"
)

func testReport() *run.Report {
	start := time.Date(2026, 10, 17, 6, 0, 0, 0, time.UTC)
	r := &run.Report{
		StartedAt:  start,
		FinishedAt: start.Add(12 * time.Second),
		Candidates: 5,
		Selected:   3,
		Unresolved: 1,
		Batches:    2,
		Sent:       1,
		SendFailed: 1,
	}
	r.Record(run.StageResult{Stage: run.StageDispatch, Outcome: run.OutcomePartialFailure})
	return r
}

func TestObserve(t *testing.T) {
	m := NewRunMetrics()
	m.Observe(testReport())

	assert.Equal(t, float64(0), testutil.ToFloat64(m.LastRunSuccess))
	assert.Equal(t, float64(12), testutil.ToFloat64(m.LastRunDuration))
	assert.Equal(t, float64(5), testutil.ToFloat64(m.Accounts.WithLabelValues("candidate")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Accounts.WithLabelValues("selected")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Notifications.WithLabelValues("failed")))
}

func TestWriteTextfile(t *testing.T) {
	m := NewRunMetrics()
	m.Observe(testReport())

	path := filepath.Join(t.TempDir(), "expiry_notifier.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.True(t, strings.Contains(text, `expiry_notifier_notifications{result="sent"} 1`))
	assert.True(t, strings.Contains(text, "expiry_notifier_last_run_success 0"))
}

func TestWriteTextfile_BadPath(t *testing.T) {
	m := NewRunMetrics()
	assert.Error(t, m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "x.prom")))
}
