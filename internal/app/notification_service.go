// internal/app/notification_service.go
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"expiry_notifier/internal/domain/account"
	"expiry_notifier/internal/domain/mailer"
	"expiry_notifier/internal/domain/run"
)

// NotificationService defines the notification run.
type NotificationService interface {
	// Run queries expiring accounts for window days, groups them by approver and
	// mails each approver once. It never panics on per-item failures; the
	// returned report carries the outcome of every stage.
	Run(ctx context.Context, window int) *run.Report
}

// ServiceOptions carries the deploy-time settings the service needs.
type ServiceOptions struct {
	SenderAddress   string
	HelpdeskAddress string
	Subject         string
	ExcludeExpired  bool // Drop accounts whose expiry date has already passed
	DryRun          bool // Render and log batches without submitting them
}

// NotificationServiceImpl implements the NotificationService interface.
type NotificationServiceImpl struct {
	directory account.Directory
	mail      mailer.Client
	logger    logrus.FieldLogger
	opts      ServiceOptions
	now       func() time.Time
}

func NewNotificationServiceImpl(
	dir account.Directory,
	mail mailer.Client,
	logger logrus.FieldLogger,
	opts ServiceOptions,
) *NotificationServiceImpl {
	return &NotificationServiceImpl{
		directory: dir,
		mail:      mail,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
	}
}

// Run executes one notification pass.
func (s *NotificationServiceImpl) Run(ctx context.Context, window int) *run.Report {
	report := &run.Report{
		RunID:     uuid.NewString(),
		Window:    window,
		StartedAt: s.now(),
	}
	log := s.logger.WithField("run_id", report.RunID)
	defer func() { report.FinishedAt = s.now() }()

	if err := account.ValidateWindow(window); err != nil {
		log.Errorf("Rejected window before querying the directory: %v", err)
		report.Fatal(run.StageSetup, err)
		return report
	}
	log.Infof("Starting expiry notification run. Window: %d days", window)

	// 1. Query
	candidates, err := s.directory.ListExpiring(ctx, window)
	if err != nil {
		log.Errorf("Directory query failed: %v", err)
		report.Fatal(run.StageQuery, fmt.Errorf("failed to list expiring accounts: %w", err))
		return report
	}
	report.Candidates = len(candidates)
	report.Record(run.StageResult{Stage: run.StageQuery, Outcome: run.OutcomeSuccess})
	log.Infof("Directory returned %d expiring accounts in category.", len(candidates))

	// 2. Select and resolve
	records, err := s.collectRecords(ctx, log, window, candidates, report)
	if err != nil {
		report.Fatal(run.StageResolve, err)
		return report
	}
	report.Selected = len(records)

	// 3. Aggregate
	batches := GroupByApprover(records)
	report.Batches = len(batches)
	report.Record(run.StageResult{Stage: run.StageAggregate, Outcome: run.OutcomeSuccess})
	if len(batches) == 0 {
		log.Info("No accounts qualify for notification. Nothing to send.")
		report.Record(run.StageResult{Stage: run.StageDispatch, Outcome: run.OutcomeSuccess})
		return report
	}
	log.Infof("Prepared %d notification batches for %d accounts.", len(batches), len(records))

	// 4. Render and dispatch
	s.dispatch(ctx, log, batches, report)

	log.WithFields(logrus.Fields{
		"candidates": report.Candidates,
		"selected":   report.Selected,
		"unresolved": report.Unresolved,
		"batches":    report.Batches,
		"sent":       report.Sent,
		"failed":     report.SendFailed,
	}).Info("Expiry notification run finished.")
	return report
}

// collectRecords applies the selection rule and resolves each remaining
// candidate through account -> approver identity -> approver email. Accounts
// that cannot be resolved are logged, counted and left out. Only context
// cancellation aborts the stage.
func (s *NotificationServiceImpl) collectRecords(
	ctx context.Context,
	log logrus.FieldLogger,
	window int,
	candidates []account.Candidate,
	report *run.Report,
) ([]account.Record, error) {
	now := s.now()
	var records []account.Record
	var details []string

	for _, c := range candidates {
		days := account.DaysUntil(c.ExpiresAt, now)
		if !account.Eligible(days, window) {
			log.Debugf("Account %s expires in %d days; not due for notice today.", c.Username, days)
			continue
		}
		if days < 0 && s.opts.ExcludeExpired {
			log.Infof("Account %s already expired %d days ago; skipped.", c.Username, -days)
			continue
		}

		rec, err := s.resolve(ctx, c, days)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("resolution interrupted: %w", ctxErr)
			}
			entry := log.WithError(err).WithField("account", c.Username)
			if IsResolutionError(err) {
				entry.Warn("Could not resolve approver; account will not be notified.")
			} else {
				entry.Error("Directory lookup failed; account will not be notified.")
			}
			details = append(details, fmt.Sprintf("%s: %v", c.Username, err))
			report.Unresolved++
			continue
		}
		if rec.Email == "" {
			log.Warnf("Account %s has no email address; listing it without one.", c.Username)
		}
		records = append(records, rec)
	}

	res := run.StageResult{Stage: run.StageResolve, Outcome: run.OutcomeSuccess}
	if len(details) > 0 {
		res.Outcome = run.OutcomePartialFailure
		res.Details = details
		log.Warnf("%d accounts skipped because their approver could not be resolved.", len(details))
	}
	report.Record(res)
	return records, nil
}

func (s *NotificationServiceImpl) resolve(ctx context.Context, c account.Candidate, days int) (account.Record, error) {
	user, err := s.directory.GetAccount(ctx, c.DN)
	if err != nil {
		return account.Record{}, fmt.Errorf("account lookup: %w", err)
	}
	if user.ManagerDN == "" {
		return account.Record{}, account.ErrNoManager
	}

	manager, err := s.directory.GetAccount(ctx, user.ManagerDN)
	if err != nil {
		return account.Record{}, fmt.Errorf("approver lookup %s: %w", user.ManagerDN, err)
	}
	if manager.Email == "" {
		return account.Record{}, fmt.Errorf("approver %s: %w", user.ManagerDN, account.ErrNoEmail)
	}

	username := user.Username
	if username == "" {
		username = c.Username
	}
	return account.Record{
		Username:      username,
		Email:         user.Email,
		DaysRemaining: days,
		ApproverEmail: manager.Email,
	}, nil
}

// dispatch sends one email per batch. A failed batch is logged and the next
// one is still attempted.
func (s *NotificationServiceImpl) dispatch(ctx context.Context, log logrus.FieldLogger, batches []account.Batch, report *run.Report) {
	var details []string

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			report.Fatal(run.StageDispatch, fmt.Errorf("dispatch interrupted: %w", err))
			return
		}

		body, err := RenderBatch(b, s.opts.HelpdeskAddress)
		if err != nil {
			log.Errorf("Could not render notification for %s: %v", b.ApproverEmail, err)
			details = append(details, fmt.Sprintf("%s: %v", b.ApproverEmail, err))
			report.SendFailed++
			continue
		}

		if s.opts.DryRun {
			log.Infof("Dry run: would notify %s about %d accounts.", b.ApproverEmail, len(b.Records))
			log.Debug(body)
			continue
		}

		err = s.mail.Send(ctx, mailer.Message{
			To:       b.ApproverEmail,
			From:     s.opts.SenderAddress,
			Subject:  s.opts.Subject,
			HTMLBody: body,
		})
		if err != nil {
			log.Errorf("Failed to send notification to %s: %v", b.ApproverEmail, err)
			details = append(details, fmt.Sprintf("%s: %v", b.ApproverEmail, err))
			report.SendFailed++
			continue
		}
		log.Infof("Notification sent to %s for %d accounts.", b.ApproverEmail, len(b.Records))
		report.Sent++
	}

	res := run.StageResult{Stage: run.StageDispatch, Outcome: run.OutcomeSuccess}
	if len(details) > 0 {
		res.Outcome = run.OutcomePartialFailure
		res.Details = details
	}
	report.Record(res)
}

// IsResolutionError reports whether err is one of the expected per-account
// directory gaps rather than a transport failure.
func IsResolutionError(err error) bool {
	return errors.Is(err, account.ErrAccountNotFound) ||
		errors.Is(err, account.ErrNoManager) ||
		errors.Is(err, account.ErrNoEmail)
}
