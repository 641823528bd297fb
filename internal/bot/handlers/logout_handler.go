package handlers

import (
	"context"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/telegram"
)

// logoutCallbackPrefix namespaces the logout confirmation buttons.
const logoutCallbackPrefix = "logout_"

// NewLogoutHandler asks for confirmation before wiping the chat's data.
func NewLogoutHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "logout")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		chatID := messageChatID(update)
		if chatID == 0 {
			return
		}

		kbd := &telegram.Keyboard{}
		kbd.Add("Yes, disconnect", logoutCallbackPrefix+"confirm")
		kbd.Add("Cancel", logoutCallbackPrefix+"cancel")

		_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:      chatID,
			Text:        "This will delete your API token and everything I remember about this chat. Are you sure?",
			ReplyMarkup: kbd.Build(2),
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send logout confirmation", "chat_id", chatID, "error", err)
		}
	}
}

// NewLogoutCallback completes or cancels the logout flow.
func NewLogoutCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "logout_callback")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable logout callback", "error", err)
			return
		}

		action := strings.TrimPrefix(ref.Data, logoutCallbackPrefix)
		answerCallback(ctx, b, ref.QueryID, "")

		if _, err := b.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: ref.ChatID, MessageID: ref.MessageID}); err != nil {
			log.WarnContext(ctx, "Failed to delete logout confirmation", "chat_id", ref.ChatID, "error", err)
		}

		if action != "confirm" {
			return
		}

		if err := deps.Store.DeleteChatData(ctx, ref.ChatID); err != nil {
			log.ErrorContext(ctx, "Failed to delete chat data", "chat_id", ref.ChatID, "error", err)
			_, _ = sendText(ctx, b, ref.ChatID, "Something went wrong disconnecting your account. Please try again.")
			return
		}

		log.InfoContext(ctx, "Chat logged out", "chat_id", ref.ChatID)
		_, _ = sendText(ctx, b, ref.ChatID, "Your account is disconnected and your data is gone. Use /register to start again.")
	}
}
