package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const defaultResyncDays = 15

// NewResyncHandler re-fetches already-sent transactions from upstream and
// edits their chat messages back in sync. An optional numeric argument widens
// or narrows the window in days.
func NewResyncHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "resync")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		days := defaultResyncDays
		if arg := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/resync")); arg != "" {
			parsed, err := strconv.Atoi(arg)
			if err != nil || parsed < 0 {
				_, _ = sendText(ctx, b, chatID, "Usage: /resync [days]")
				return
			}
			days = parsed
		}

		result, err := deps.Engine.Resync(ctx, chatID, days)
		if err != nil {
			log.ErrorContext(ctx, "Resync failed", "chat_id", chatID, "error", err)
			_, _ = sendText(ctx, b, chatID, "Resync failed. Please try again later.")
			return
		}

		if err := deps.Store.IncrementMetric(ctx, "resyncs", 1); err != nil {
			log.WarnContext(ctx, "Failed to record resync metric", "chat_id", chatID, "error", err)
		}

		_, _ = sendText(ctx, b, chatID, fmt.Sprintf(
			"Resynced %d transactions (%d errors, %d missing upstream).",
			result.Synced, result.Errors, result.Missing))
	}
}
