package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expiry_notifier/internal/domain/run"
	"expiry_notifier/internal/infra/metrics"
	"expiry_notifier/internal/infra/statusfile"
)

type fakeAlerter struct {
	texts []string
	err   error
}

func (a *fakeAlerter) SendAlert(_ context.Context, text string) error {
	if a.err != nil {
		return a.err
	}
	a.texts = append(a.texts, text)
	return nil
}

func newTestReporter(t *testing.T, alerter *fakeAlerter) (*Reporter, ReporterOptions) {
	t.Helper()
	dir := t.TempDir()
	opts := ReporterOptions{
		StatusFile:      filepath.Join(dir, "status", "exitstatus.txt"),
		MetricsTextfile: filepath.Join(dir, "expiry_notifier.prom"),
		LogDir:          filepath.Join(dir, "logs"),
		BaseName:        "expiry-notifier",
		LogRetention:    7 * 24 * time.Hour,
	}
	require.NoError(t, os.MkdirAll(opts.LogDir, 0o755))
	logger, _ := test.NewNullLogger()

	var r *Reporter
	if alerter != nil {
		r = NewReporter(opts, alerter, metrics.NewRunMetrics(), logger)
	} else {
		r = NewReporter(opts, nil, metrics.NewRunMetrics(), logger)
	}
	r.now = func() time.Time { return testNow }
	return r, opts
}

func readStatus(t *testing.T, path string) run.Status {
	t.Helper()
	status, err := statusfile.Read(path)
	require.NoError(t, err)
	return status
}

func TestJob_SuccessWritesZero(t *testing.T) {
	dir := &fakeDirectory{}
	boss := dir.addManager("Boss", "boss@example.com")
	dir.addUser("alice", 3, boss)
	mail := &fakeMailer{}
	alerter := &fakeAlerter{}

	svc, _ := newTestService(dir, mail, ServiceOptions{})
	reporter, opts := newTestReporter(t, alerter)

	report := NewJob(svc, reporter, 30).Execute(context.Background())

	assert.Equal(t, run.StatusSuccess, report.Status())
	assert.Equal(t, run.StatusSuccess, readStatus(t, opts.StatusFile))
	assert.Empty(t, alerter.texts, "no alert for a successful run")
	assert.FileExists(t, opts.MetricsTextfile)
}

func TestJob_QueryFailureWritesOneAndSendsNothing(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("server down")}
	mail := &fakeMailer{}
	alerter := &fakeAlerter{}

	svc, _ := newTestService(dir, mail, ServiceOptions{})
	reporter, opts := newTestReporter(t, alerter)

	NewJob(svc, reporter, 30).Execute(context.Background())

	assert.Equal(t, run.StatusFailure, readStatus(t, opts.StatusFile))
	assert.Empty(t, mail.sent)
	require.Len(t, alerter.texts, 1)
	assert.Contains(t, alerter.texts[0], "QUERY")
	assert.Contains(t, alerter.texts[0], "server down")
}

func TestJob_NoAccountsWritesZero(t *testing.T) {
	svc, _ := newTestService(&fakeDirectory{}, &fakeMailer{}, ServiceOptions{})
	reporter, opts := newTestReporter(t, nil)

	NewJob(svc, reporter, 30).Execute(context.Background())

	assert.Equal(t, run.StatusSuccess, readStatus(t, opts.StatusFile))
}

func TestReporter_SetupFailure(t *testing.T) {
	alerter := &fakeAlerter{}
	reporter, opts := newTestReporter(t, alerter)

	status := reporter.Finish(context.Background(), SetupFailure(errors.New("failed to bind to directory"), 30, testNow))

	assert.Equal(t, run.StatusFailure, status)
	assert.Equal(t, run.StatusFailure, readStatus(t, opts.StatusFile))
	require.Len(t, alerter.texts, 1)
	assert.Contains(t, alerter.texts[0], "SETUP: failed to bind to directory")
}

func TestReporter_AlertFailureDoesNotChangeStatus(t *testing.T) {
	reporter, opts := newTestReporter(t, &fakeAlerter{err: errors.New("telegram unreachable")})

	status := reporter.Finish(context.Background(), SetupFailure(errors.New("boom"), 30, testNow))

	assert.Equal(t, run.StatusFailure, status)
	assert.Equal(t, run.StatusFailure, readStatus(t, opts.StatusFile))
}

func TestReporter_PrunesOldTranscripts(t *testing.T) {
	reporter, opts := newTestReporter(t, nil)

	old := filepath.Join(opts.LogDir, "expiry-notifier_20261001_060000.log")
	fresh := filepath.Join(opts.LogDir, "expiry-notifier_20261016_060000.log")
	for path, age := range map[string]time.Duration{old: 10 * 24 * time.Hour, fresh: 24 * time.Hour} {
		require.NoError(t, os.WriteFile(path, []byte("log"), 0o600))
		mtime := testNow.Add(-age)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}

	reporter.Finish(context.Background(), &run.Report{StartedAt: testNow})

	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

func TestAlertText(t *testing.T) {
	report := &run.Report{RunID: "abc", Window: 30, Batches: 3, Sent: 2}
	report.Record(run.StageResult{Stage: run.StageQuery, Outcome: run.OutcomeSuccess})
	report.Record(run.StageResult{Stage: run.StageDispatch, Outcome: run.OutcomePartialFailure, Details: []string{"x"}})

	text := AlertText(report)
	assert.Contains(t, text, "window 30 days, run abc")
	assert.Contains(t, text, "DISPATCH: 1 failures")
	assert.Contains(t, text, "Sent 2 of 3 notifications")
	assert.NotContains(t, text, "QUERY")
}

func TestReporter_LogsStatusChange(t *testing.T) {
	logger, hook := test.NewNullLogger()
	statusPath := filepath.Join(t.TempDir(), "exitstatus.txt")
	require.NoError(t, statusfile.Write(statusPath, run.StatusSuccess))
	r := NewReporter(ReporterOptions{StatusFile: statusPath}, nil, nil, logger)

	report := &run.Report{Window: 30, StartedAt: testNow}
	report.Fatal(run.StageQuery, errors.New("ldap: connection reset"))
	assert.Equal(t, run.StatusFailure, r.Finish(context.Background(), report))

	var changed bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Run status changed from SUCCESS to FAILURE." {
			changed = true
		}
	}
	assert.True(t, changed)
	assert.Equal(t, run.StatusFailure, readStatus(t, statusPath))

	hook.Reset()
	r.Finish(context.Background(), report)
	for _, e := range hook.AllEntries() {
		assert.NotContains(t, e.Message, "status changed")
	}
}
