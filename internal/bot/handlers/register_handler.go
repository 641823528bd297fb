package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
)

// NewRegisterHandler starts or completes token registration. With an argument
// the token is validated and stored immediately; without one the chat is put
// into a token expectation and the next message completes the flow.
func NewRegisterHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "register")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(update.Message.Text, "/register"))
		if token == "" {
			msg, err := sendText(ctx, b, chatID,
				"Please send me your Lunch Money API token. You can create one at https://my.lunchmoney.app/developers")
			if err != nil {
				log.ErrorContext(ctx, "Failed to send token prompt", "chat_id", chatID, "error", err)
				return
			}
			state := &database.ConversationState{ChatID: chatID, Kind: database.ExpectToken, MessageID: msg.ID}
			if err := deps.Store.SetConversationState(ctx, state); err != nil {
				log.ErrorContext(ctx, "Failed to save token expectation", "chat_id", chatID, "error", err)
			}
			return
		}

		completeRegistration(ctx, deps, b, chatID, update.Message.ID, token)
	}
}

// completeRegistration validates a token against the upstream API, persists
// it, and deletes the message that carried it.
func completeRegistration(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, chatID int64, tokenMessageID int, token string) {
	log := deps.Logger.With("handler", "register")

	// The token is a credential; the message carrying it should not linger in
	// the chat history.
	if _, err := b.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: chatID, MessageID: tokenMessageID}); err != nil {
		log.WarnContext(ctx, "Failed to delete token message", "chat_id", chatID, "error", err)
	}

	user, err := deps.NewProvider(token).GetUser(ctx)
	if err != nil {
		log.WarnContext(ctx, "Token validation failed", "chat_id", chatID, "error", err)
		_, _ = sendText(ctx, b, chatID,
			"That token does not seem to work. Please double-check it and try /register again.")
		return
	}

	if err := deps.Store.SaveToken(ctx, chatID, token); err != nil {
		log.ErrorContext(ctx, "Failed to save token", "chat_id", chatID, "error", err)
		_, _ = sendText(ctx, b, chatID, "Something went wrong saving your token. Please try again.")
		return
	}

	if err := deps.Store.IncrementMetric(ctx, "registrations", 1); err != nil {
		log.WarnContext(ctx, "Failed to record registration metric", "chat_id", chatID, "error", err)
	}

	log.InfoContext(ctx, "Chat registered", "chat_id", chatID, "user_id", user.UserID)
	_, _ = sendText(ctx, b, chatID, fmt.Sprintf(
		"Hello %s! Your account is connected.\n\nI will now message you new transactions as they show up. Use /review to fetch them right away, and /settings to tune how I behave.",
		user.UserName))
}
