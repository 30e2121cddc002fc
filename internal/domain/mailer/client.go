package mailer

import "context"

// Message is one outgoing HTML email.
type Message struct {
	To       string
	From     string
	Subject  string
	HTMLBody string
}

// Client defines an interface for handing messages to the mail relay.
// This keeps the notification logic independent from the SMTP library.
type Client interface {
	Send(ctx context.Context, msg Message) error
}
