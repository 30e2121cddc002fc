package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"expiry_notifier/internal/app"
	"expiry_notifier/internal/domain/run"
	domainTelegram "expiry_notifier/internal/domain/telegram"
	"expiry_notifier/internal/infra/config"
	"expiry_notifier/internal/infra/directory"
	"expiry_notifier/internal/infra/logger"
	"expiry_notifier/internal/infra/mail"
	"expiry_notifier/internal/infra/metrics"
	"expiry_notifier/internal/infra/scheduler"
	"expiry_notifier/internal/infra/telegram"
)

// Version is injected at build time via -ldflags.
var Version = "dev"

type runFlags struct {
	window     int
	windowSet  bool
	dryRun     bool
	cronSpec   string
	runAtStart bool
}

// loadConfig is replaced in tests.
var loadConfig = config.Load

func NewRootCommand(out io.Writer) *cobra.Command {
	flags := &runFlags{}

	root := &cobra.Command{
		Use:          "expiry-notifier",
		Short:        "Email approvers about accounts that are about to expire",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().IntVarP(&flags.window, "window", "w", 0, "Look-ahead window in days (0-30); overrides NOTIFY_WINDOW_DAYS")
	root.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Render notifications without sending them")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run one notification pass and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.windowSet = cmd.Flags().Changed("window")
			return runOnce(cmd.Context(), flags)
		},
	}

	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run notification passes on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.windowSet = cmd.Flags().Changed("window")
			return runScheduled(cmd.Context(), flags)
		},
	}
	scheduleCmd.Flags().StringVar(&flags.cronSpec, "cron", "", "Cron spec for runs; overrides CRON_SPEC")
	scheduleCmd.Flags().BoolVar(&flags.runAtStart, "run-at-start", false, "Run one pass immediately before waiting for the schedule")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "expiry-notifier %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}

	root.AddCommand(runCmd, scheduleCmd, versionCmd)
	return root
}

// runOnce performs a single pass. Any failure, including configuration
// errors, ends up in the status file.
func runOnce(ctx context.Context, flags *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := prepareConfig(flags)
	if err != nil {
		recordEarlyFailure(ctx, cfg, flags, err)
		return err
	}

	report := newRunExecutor(cfg, flags.dryRun, newAlerter(cfg)).Execute(ctx)
	if report.Status() == run.StatusFailure {
		if res, ok := report.Stage(run.StageSetup); ok && res.Outcome == run.OutcomeFatal {
			return res.Cause
		}
	}
	return nil
}

// runScheduled keeps running passes on the cron schedule until SIGINT/SIGTERM.
func runScheduled(ctx context.Context, flags *runFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := prepareConfig(flags)
	if err != nil {
		recordEarlyFailure(ctx, cfg, flags, err)
		return err
	}
	if flags.cronSpec != "" {
		cfg.CronSpec = flags.cronSpec
	}
	if cfg.CronSpec == "" {
		err := fmt.Errorf("no schedule: pass --cron or set CRON_SPEC")
		recordEarlyFailure(ctx, cfg, flags, err)
		return err
	}

	baseCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	executor := newRunExecutor(cfg, flags.dryRun, newAlerter(cfg))
	notifScheduler := scheduler.NewNotificationScheduler(baseCtx, executor, logger.Log, cfg.CronSpec, scheduler.DefaultRunTimeout)
	if err := notifScheduler.Start(); err != nil {
		recordEarlyFailure(ctx, cfg, flags, err)
		return err
	}
	if flags.runAtStart {
		notifScheduler.RunNow()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down scheduler...")
	cancel()
	notifScheduler.Stop()
	return nil
}

// prepareConfig loads configuration, applies flags and validates the window.
// The loaded config is returned with a window error so the failure can be
// recorded where the config says.
func prepareConfig(flags *runFlags) (*config.AppConfig, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("could not load configuration: %w", err)
	}
	if flags.windowSet {
		cfg.SetWindow(flags.window)
	}
	logger.Init(cfg)
	return cfg, cfg.ValidateWindow()
}

// recordEarlyFailure writes the failure status for a run that never started.
// Without a config it falls back to STATUS_FILE or the default location.
func recordEarlyFailure(ctx context.Context, cfg *config.AppConfig, flags *runFlags, cause error) {
	logger.Log.Errorf("FATAL: %v", cause)

	window := flags.window
	statusPath := os.Getenv("STATUS_FILE")
	if cfg != nil {
		statusPath = cfg.StatusFile
		if !flags.windowSet {
			window = cfg.Window()
		}
	}
	if statusPath == "" {
		statusPath = config.DefaultStatusFile
	}
	reporter := app.NewReporter(app.ReporterOptions{StatusFile: statusPath}, nil, nil, logger.Log)
	reporter.Finish(ctx, app.SetupFailure(cause, window, time.Now()))
}

func newAlerter(cfg *config.AppConfig) domainTelegram.Client {
	if !cfg.AlertsEnabled() {
		return nil
	}
	a, err := telegram.NewTelebotAdapter(cfg.AlertTelegramToken, cfg.AlertTelegramChatID, "")
	if err != nil {
		logger.Log.Warnf("Failure alerts disabled: %v", err)
		return nil
	}
	return a
}

// runExecutor wires one run: transcript, directory connection, mail client,
// notification service and reporter. It is created once and executed per run
// so a scheduled process reconnects to the directory every time.
type runExecutor struct {
	cfg      *config.AppConfig
	dryRun   bool
	alerter  domainTelegram.Client
	baseName string
}

func newRunExecutor(cfg *config.AppConfig, dryRun bool, alerter domainTelegram.Client) *runExecutor {
	return &runExecutor{
		cfg:      cfg,
		dryRun:   dryRun,
		alerter:  alerter,
		baseName: logger.BaseName(os.Args[0]),
	}
}

func (e *runExecutor) reporter() *app.Reporter {
	var m *metrics.RunMetrics
	if e.cfg.MetricsTextfile != "" {
		m = metrics.NewRunMetrics()
	}
	return app.NewReporter(app.ReporterOptions{
		StatusFile:      e.cfg.StatusFile,
		MetricsTextfile: e.cfg.MetricsTextfile,
		LogDir:          e.cfg.LogDir,
		BaseName:        e.baseName,
		LogRetention:    time.Duration(e.cfg.LogRetentionDays) * 24 * time.Hour,
	}, e.alerter, m, logger.Log)
}

func (e *runExecutor) Execute(ctx context.Context) *run.Report {
	startedAt := time.Now()
	reporter := e.reporter()

	transcript, err := logger.StartTranscript(e.cfg.LogDir, e.baseName, startedAt)
	if err != nil {
		report := app.SetupFailure(err, e.cfg.Window(), startedAt)
		reporter.Finish(ctx, report)
		return report
	}
	defer func() {
		if err := transcript.Close(); err != nil {
			logger.Log.Warnf("Could not close transcript: %v", err)
		}
	}()

	logger.Log.WithFields(logrus.Fields{
		"window":  e.cfg.Window(),
		"dry_run": e.dryRun,
		"version": Version,
	}).Info("expiry-notifier run starting.")

	conn, err := directory.NewLDAPConnection(e.cfg.LDAP)
	if err != nil {
		report := app.SetupFailure(err, e.cfg.Window(), startedAt)
		reporter.Finish(ctx, report)
		return report
	}
	defer conn.Close()

	dir := directory.NewLDAPAccountDirectory(conn, e.cfg.LDAP.BaseDN, e.cfg.CategoryMarker, e.cfg.LDAP.PageSize, logger.Log).
		IncludeExpired(!e.cfg.ExcludeExpired)
	mailClient := mail.NewSMTPClient(e.cfg.Mail, logger.Log)
	svc := app.NewNotificationServiceImpl(dir, mailClient, logger.Log, app.ServiceOptions{
		SenderAddress:   e.cfg.Mail.SenderAddress,
		HelpdeskAddress: e.cfg.Mail.HelpdeskAddress,
		Subject:         e.cfg.Mail.Subject,
		ExcludeExpired:  e.cfg.ExcludeExpired,
		DryRun:          e.dryRun,
	})

	return app.NewJob(svc, reporter, e.cfg.Window()).Execute(ctx)
}
