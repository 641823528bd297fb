package handlers

import (
	"context"
	"errors"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
)

// RegisteredOnly blocks handlers for chats that never registered a token,
// pointing them at /register instead.
func RegisteredOnly(deps HandlerDeps) tgbot.Middleware {
	return func(next tgbot.HandlerFunc) tgbot.HandlerFunc {
		return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			chatID := messageChatID(update)
			if chatID == 0 {
				if ref, err := callbackFrom(update); err == nil {
					chatID = ref.ChatID
				}
			}
			if chatID == 0 {
				deps.Logger.WarnContext(ctx, "Could not determine chat for registration check")
				return
			}

			_, err := deps.Store.GetSettings(ctx, chatID)
			switch {
			case errors.Is(err, database.ErrNotRegistered):
				_, _ = sendText(ctx, b, chatID,
					"This chat is not set up yet. Register your Lunch Money API token with /register <token> first.")
				return
			case err != nil:
				deps.Logger.ErrorContext(ctx, "Failed to check chat registration", "chat_id", chatID, "error", err)
				return
			}

			next(ctx, b, update)
		}
	}
}
