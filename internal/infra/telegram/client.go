// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/telebot.v3"
)

const requestTimeout = 15 * time.Second

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot    *telebot.Bot
	chatID int64
}

// NewTelebotAdapter builds an offline bot: the job only pushes messages and
// never polls for updates, so no getMe round trip is made at startup.
func NewTelebotAdapter(token string, chatID int64, apiURL string) (*TelebotAdapter, error) {
	b, err := telebot.NewBot(telebot.Settings{
		URL:     apiURL,
		Token:   token,
		Offline: true,
		Client:  &http.Client{Timeout: requestTimeout},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &TelebotAdapter{bot: b, chatID: chatID}, nil
}

// SendAlert posts text to the configured operator chat.
func (tba *TelebotAdapter) SendAlert(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := tba.bot.Send(&telebot.Chat{ID: tba.chatID}, text, &telebot.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return fmt.Errorf("failed to send telegram alert to chat %d: %w", tba.chatID, err)
	}
	return nil
}
