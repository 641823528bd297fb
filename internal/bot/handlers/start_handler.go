package handlers

import (
	"context"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const welcomeText = `Hi! I can keep you on top of your Lunch Money transactions.

Once you connect your account I will message you every new transaction so you can review, categorize and annotate it without leaving the chat.

To get started, create an API token at https://my.lunchmoney.app/developers and send it to me with:

/register <token>`

// NewStartHandler greets a new chat and points it at registration.
func NewStartHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "start")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		if _, err := sendText(ctx, b, chatID, welcomeText); err != nil {
			log.ErrorContext(ctx, "Failed to send welcome message", "chat_id", chatID, "error", err)
		}
	}
}
