package mail

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"expiry_notifier/internal/domain/mailer"
	"expiry_notifier/internal/infra/config"
)

// Dialer is the part of *gomail.Dialer used to submit messages.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPClient implements mailer.Client on top of gomail. Each Send makes a
// single submission attempt; gomail bounds the dial itself to ten seconds.
type SMTPClient struct {
	dialer Dialer
	host   string
	logger logrus.FieldLogger
}

func NewSMTPClient(cfg config.MailConfig, logger logrus.FieldLogger) *SMTPClient {
	logger.Infof("Initializing mail relay client for host: %s, port: %d", cfg.RelayHost, cfg.RelayPort)
	d := gomail.NewDialer(cfg.RelayHost, cfg.RelayPort, cfg.Username, cfg.Password)
	if cfg.InsecureSkipVerify {
		logger.Warn("TLS certificate verification for the mail relay is disabled.")
		d.TLSConfig = &tls.Config{ServerName: cfg.RelayHost, InsecureSkipVerify: true} //nolint:gosec // opt-in for relays with internal certificates
	}
	return &SMTPClient{
		dialer: d,
		host:   cfg.RelayHost,
		logger: logger,
	}
}

// NewSMTPClientWithDialer is used when the caller owns the dialer.
func NewSMTPClientWithDialer(d Dialer, host string, logger logrus.FieldLogger) *SMTPClient {
	return &SMTPClient{dialer: d, host: host, logger: logger}
}

// BuildMessage converts a mailer.Message into a gomail message with an HTML body.
func BuildMessage(msg mailer.Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", msg.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)
	return m
}

func (c *SMTPClient) Send(ctx context.Context, msg mailer.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if msg.To == "" {
		return fmt.Errorf("message has no recipient")
	}

	c.logger.Debugf("Submitting mail to %s via %s. Subject: %s", msg.To, c.host, msg.Subject)
	if err := c.dialer.DialAndSend(BuildMessage(msg)); err != nil {
		return fmt.Errorf("failed to submit mail to %s via %s: %w", msg.To, c.host, err)
	}
	return nil
}
