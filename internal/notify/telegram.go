// Package notify delivers escalation signals to a human operator over
// Telegram. When no bot token is configured every call is a no-op.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/mkefalas/apiary/internal/config"
)

const telegramMaxLen = 4096

type Telegram struct {
	bot    *telego.Bot
	chatID int64
}

// NewTelegram builds a notifier from config. An empty token yields a
// disabled notifier that silently drops escalations.
func NewTelegram(cfg config.TelegramConfig) (*Telegram, error) {
	if cfg.Token == "" {
		return &Telegram{}, nil
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: cfg.ChatID}, nil
}

// Enabled reports whether escalations will actually be delivered.
func (t *Telegram) Enabled() bool {
	return t.bot != nil
}

// Escalate sends the escalation message, chunked to Telegram's limit.
// Delivery failures are logged, never returned: escalation must not
// block the decision engine.
func (t *Telegram) Escalate(taskID, reason string) {
	if t.bot == nil {
		return
	}

	text := fmt.Sprintf("⚠️ Task %s needs attention\n\n%s", taskID, reason)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := t.send(ctx, text); err != nil {
			slog.Error("escalation delivery failed", "task", taskID, "error", err)
		}
	}()
}

func (t *Telegram) send(ctx context.Context, text string) error {
	for _, chunk := range chunkMessage(text, telegramMaxLen) {
		msg := tu.Message(tu.ID(t.chatID), chunk)
		if _, err := t.bot.SendMessage(ctx, msg); err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

// chunkMessage splits a message into chunks that fit within Telegram's
// message size limit, preferring to cut at a newline.
func chunkMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			chunks = append(chunks, text)
			break
		}

		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > maxLen/2 {
			cutAt = idx + 1
		}

		chunks = append(chunks, text[:cutAt])
		text = text[cutAt:]
	}

	return chunks
}
