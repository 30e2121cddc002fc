package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"expiry_notifier/internal/domain/run"
	domainTelegram "expiry_notifier/internal/domain/telegram"
	"expiry_notifier/internal/infra/logger"
	"expiry_notifier/internal/infra/metrics"
	"expiry_notifier/internal/infra/statusfile"
)

// ReporterOptions configures end-of-run housekeeping.
type ReporterOptions struct {
	StatusFile      string
	MetricsTextfile string // Empty disables the textfile
	LogDir          string
	BaseName        string // Transcript prefix
	LogRetention    time.Duration
}

// Reporter persists the outcome of a run: status file, metrics, operator alert
// and transcript pruning.
type Reporter struct {
	opts    ReporterOptions
	alerter domainTelegram.Client // nil when alerts are disabled
	metrics *metrics.RunMetrics   // nil when no textfile is configured
	logger  logrus.FieldLogger
	now     func() time.Time
}

func NewReporter(opts ReporterOptions, alerter domainTelegram.Client, m *metrics.RunMetrics, logger logrus.FieldLogger) *Reporter {
	return &Reporter{opts: opts, alerter: alerter, metrics: m, logger: logger, now: time.Now}
}

// Finish records report. Housekeeping failures are logged and never change
// the run status; the status file is written last.
func (r *Reporter) Finish(ctx context.Context, report *run.Report) run.Status {
	if report.FinishedAt.IsZero() {
		report.FinishedAt = r.now()
	}
	status := report.Status()
	log := r.logger.WithField("run_id", report.RunID)

	for _, st := range report.Stages {
		entry := log.WithFields(logrus.Fields{"stage": st.Stage, "outcome": st.Outcome})
		switch st.Outcome {
		case run.OutcomeFatal:
			entry.Errorf("Stage failed: %v", st.Cause)
		case run.OutcomePartialFailure:
			entry.Warnf("Stage completed with %d failures: %s", len(st.Details), strings.Join(st.Details, "; "))
		default:
			entry.Debug("Stage completed.")
		}
	}

	if r.opts.LogDir != "" && r.opts.BaseName != "" {
		removed, err := logger.Prune(r.opts.LogDir, r.opts.BaseName, r.opts.LogRetention, r.now())
		if err != nil {
			log.Errorf("Log pruning failed: %v", err)
		} else if removed > 0 {
			log.Infof("Removed %d transcripts older than %s.", removed, r.opts.LogRetention)
		}
	}

	if r.metrics != nil && r.opts.MetricsTextfile != "" {
		r.metrics.Observe(report)
		if err := r.metrics.WriteTextfile(r.opts.MetricsTextfile); err != nil {
			log.Errorf("Could not write metrics: %v", err)
		}
	}

	if status == run.StatusFailure && r.alerter != nil {
		if err := r.alerter.SendAlert(ctx, AlertText(report)); err != nil {
			log.Errorf("Could not send failure alert: %v", err)
		}
	}

	if prev, err := statusfile.Read(r.opts.StatusFile); err == nil && prev != status {
		log.Warnf("Run status changed from %s to %s.", prev, status)
	}
	if err := statusfile.Write(r.opts.StatusFile, status); err != nil {
		log.Errorf("Could not write status file %s: %v", r.opts.StatusFile, err)
	} else {
		log.Infof("Run status %s written to %s.", status, r.opts.StatusFile)
	}
	return status
}

// SetupFailure builds the report for a run that could not start.
func SetupFailure(cause error, window int, startedAt time.Time) *run.Report {
	report := &run.Report{Window: window, StartedAt: startedAt}
	report.Fatal(run.StageSetup, cause)
	return report
}

// AlertText summarises a failed run for the operator chat.
func AlertText(report *run.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Expiry notification run FAILED (window %d days", report.Window)
	if report.RunID != "" {
		fmt.Fprintf(&b, ", run %s", report.RunID)
	}
	b.WriteString(")\n")
	for _, st := range report.Stages {
		switch st.Outcome {
		case run.OutcomeFatal:
			fmt.Fprintf(&b, "%s: %v\n", st.Stage, st.Cause)
		case run.OutcomePartialFailure:
			fmt.Fprintf(&b, "%s: %d failures\n", st.Stage, len(st.Details))
		}
	}
	fmt.Fprintf(&b, "Sent %d of %d notifications. See the transcript log for details.", report.Sent, report.Batches)
	return b.String()
}

// Job runs the notification service and reports the result.
type Job struct {
	service  NotificationService
	reporter *Reporter
	window   int
}

func NewJob(service NotificationService, reporter *Reporter, window int) *Job {
	return &Job{service: service, reporter: reporter, window: window}
}

// Execute performs one complete run and returns its report.
func (j *Job) Execute(ctx context.Context) *run.Report {
	report := j.service.Run(ctx, j.window)
	j.reporter.Finish(ctx, report)
	return report
}
