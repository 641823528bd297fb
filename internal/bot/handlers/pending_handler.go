package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/reconciler"
)

// NewPendingHandler runs an on-demand pass over pending transactions,
// regardless of the chat's polling mode.
func NewPendingHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "pending")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		result, err := deps.Engine.Reconcile(ctx, chatID, reconciler.ModePending)
		if err != nil {
			log.ErrorContext(ctx, "Pending reconciliation failed", "chat_id", chatID, "error", err)
			_, _ = sendText(ctx, b, chatID, "Could not fetch pending transactions right now. Please try again later.")
			return
		}

		if result.Fetched == 0 {
			_, _ = sendText(ctx, b, chatID, "No pending transactions found.")
		}
	}
}
