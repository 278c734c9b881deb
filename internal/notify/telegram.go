// Package notify announces post lifecycle outcomes to external channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/postpilot/internal/types"
)

const maxTelegramMessage = 4096

// botClient is the slice of the Telegram bot API the notifier uses.
type botClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram sends posted/failed announcements to a single chat.
type Telegram struct {
	bot    botClient
	chatID int64
}

// NewTelegram creates a Telegram notifier for the given bot token and chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string { return "telegram" }

// Notify formats the record's outcome and sends it, split across messages
// when the text exceeds the Telegram limit.
func (t *Telegram) Notify(_ context.Context, record *types.PostRecord) error {
	for _, part := range splitMessage(formatRecord(record)) {
		msg := tgbotapi.NewMessage(t.chatID, part)
		msg.ParseMode = "Markdown"
		if _, err := t.bot.Send(msg); err != nil {
			// Retry without markdown if it fails
			msg.ParseMode = ""
			if _, err := t.bot.Send(msg); err != nil {
				return fmt.Errorf("send message: %w", err)
			}
		}
	}
	return nil
}

func formatRecord(record *types.PostRecord) string {
	var b strings.Builder
	switch record.Status {
	case types.StatusPosted:
		fmt.Fprintf(&b, "✅ Post %d published", record.ID)
		if record.PublishedAt != nil {
			fmt.Fprintf(&b, " at %s", record.PublishedAt.Format("2006-01-02 15:04 MST"))
		}
		if record.Engagement != nil && record.Engagement.URL != "" {
			fmt.Fprintf(&b, "\n%s", record.Engagement.URL)
		}
	case types.StatusFailed:
		fmt.Fprintf(&b, "❌ Post %d failed permanently", record.ID)
		if record.LastError != "" {
			fmt.Fprintf(&b, "\n%s", record.LastError)
		}
		fmt.Fprintf(&b, "\nRetry with: postpilot post retry %d", record.ID)
	default:
		fmt.Fprintf(&b, "Post %d is %s", record.ID, record.Status)
	}

	preview := record.Content
	if len(preview) > 120 {
		preview = preview[:120] + "..."
	}
	if preview != "" {
		fmt.Fprintf(&b, "\n\n%s", preview)
	}
	return b.String()
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}

// Log is a fallback notifier that writes outcomes to the structured log,
// used when no Telegram credentials are configured.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) Notify(_ context.Context, record *types.PostRecord) error {
	switch record.Status {
	case types.StatusPosted:
		slog.Info("post published", "post", record.ID, "url", engagementURL(record))
	case types.StatusFailed:
		slog.Error("post failed permanently", "post", record.ID, "error", record.LastError)
	default:
		slog.Info("post state changed", "post", record.ID, "status", record.Status)
	}
	return nil
}

func engagementURL(record *types.PostRecord) string {
	if record.Engagement == nil {
		return ""
	}
	return record.Engagement.URL
}
