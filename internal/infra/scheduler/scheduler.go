package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"expiry_notifier/internal/domain/run"
)

// DefaultRunTimeout bounds a single scheduled run.
const DefaultRunTimeout = 30 * time.Minute

// Executor performs one complete notification run.
type Executor interface {
	Execute(ctx context.Context) *run.Report
}

type NotificationScheduler struct {
	cronEngine *cron.Cron
	executor   Executor
	logger     logrus.FieldLogger
	cronSpec   string
	runTimeout time.Duration
	baseCtx    context.Context
}

// NewNotificationScheduler builds a scheduler that runs executor on cronSpec.
// Runs never overlap: a tick that fires while the previous run is still in
// progress is skipped. baseCtx cancels in-flight runs on shutdown.
func NewNotificationScheduler(
	baseCtx context.Context,
	executor Executor,
	logger *logrus.Logger,
	cronSpec string, // e.g., "0 6 * * *" (06:00 daily)
	runTimeout time.Duration,
) *NotificationScheduler {
	if runTimeout <= 0 {
		runTimeout = DefaultRunTimeout
	}
	cronLogger := cron.PrintfLogger(logger)
	return &NotificationScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		executor:   executor,
		logger:     logger,
		cronSpec:   cronSpec,
		runTimeout: runTimeout,
		baseCtx:    baseCtx,
	}
}

func (s *NotificationScheduler) Start() error {
	s.logger.Info("Starting notification scheduler...")

	_, err := s.cronEngine.AddFunc(s.cronSpec, func() {
		s.logger.Info("Cron job triggered for expiry notification run.")
		s.executeNotificationProcess()
	})
	if err != nil {
		return fmt.Errorf("could not add notification cron job %q: %w", s.cronSpec, err)
	}

	s.cronEngine.Start()
	for _, e := range s.cronEngine.Entries() {
		s.logger.Infof("Notification scheduler started. Next run at %s.", e.Next.Format(time.RFC3339))
	}
	return nil
}

func (s *NotificationScheduler) executeNotificationProcess() {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.runTimeout)
	defer cancel()

	report := s.executor.Execute(ctx)
	s.logger.Infof("Scheduled run finished with status %s in %s.", report.Status(), report.Duration().Round(time.Millisecond))
}

// RunNow triggers one run outside the schedule, e.g. at startup.
func (s *NotificationScheduler) RunNow() {
	s.executeNotificationProcess()
}

func (s *NotificationScheduler) Stop() {
	s.logger.Info("Stopping notification scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Notification scheduler gracefully stopped.")
}
