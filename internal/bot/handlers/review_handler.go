package handlers

import (
	"context"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/reconciler"
)

// NewReviewHandler runs an on-demand reconciliation pass for the chat, in the
// same mode its scheduled polling uses.
func NewReviewHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "review")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		settings, err := deps.Store.GetSettings(ctx, chatID)
		if err != nil {
			log.ErrorContext(ctx, "Failed to load settings", "chat_id", chatID, "error", err)
			return
		}

		mode := reconciler.ModePosted
		if settings.PollPending {
			mode = reconciler.ModePending
		}

		result, err := deps.Engine.Reconcile(ctx, chatID, mode)
		if err != nil {
			log.ErrorContext(ctx, "Manual reconciliation failed", "chat_id", chatID, "error", err)
			_, _ = sendText(ctx, b, chatID, "Could not fetch transactions right now. Please try again later.")
			return
		}

		// A manual pass counts as a poll, so the scheduler does not repeat it
		// immediately after.
		if err := deps.Store.UpdateLastPollAt(ctx, chatID, time.Now()); err != nil {
			log.WarnContext(ctx, "Failed to record manual poll time", "chat_id", chatID, "error", err)
		}
		if err := deps.Store.IncrementMetric(ctx, "manual_reviews", 1); err != nil {
			log.WarnContext(ctx, "Failed to record review metric", "chat_id", chatID, "error", err)
		}

		if result.Fetched == 0 {
			_, _ = sendText(ctx, b, chatID, "No unreviewed transactions found.")
		}
	}
}
