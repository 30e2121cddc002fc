package telegram

import "context"

// Client defines an interface for posting operator alerts to a Telegram chat.
// This helps in decoupling the job from the specific bot library.
type Client interface {
	SendAlert(ctx context.Context, text string) error
}
