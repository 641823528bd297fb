package handlers

import (
	"context"
	"strconv"
	"strings"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/telegram"
)

// NewSettingsCallback handles every button of the settings menu. The payload
// after the settings prefix selects the action.
func NewSettingsCallback(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "settings_callback")

	return func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
		ref, err := callbackFrom(update)
		if err != nil {
			log.WarnContext(ctx, "Unusable settings callback", "error", err)
			return
		}

		action := strings.TrimPrefix(ref.Data, settingsCallbackPrefix)
		switch {
		case action == "done":
			answerCallback(ctx, b, ref.QueryID, "")
			if _, err := b.DeleteMessage(ctx, &tgbot.DeleteMessageParams{ChatID: ref.ChatID, MessageID: ref.MessageID}); err != nil {
				log.WarnContext(ctx, "Failed to delete settings menu", "chat_id", ref.ChatID, "error", err)
			}

		case action == "interval":
			answerCallback(ctx, b, ref.QueryID, "")
			editSettingsMessage(ctx, deps, b, ref, "How often should I check for new transactions?", intervalKeyboard())

		case strings.HasPrefix(action, "interval_"):
			secs, err := strconv.ParseInt(strings.TrimPrefix(action, "interval_"), 10, 64)
			if err != nil {
				log.WarnContext(ctx, "Invalid interval payload", "data", ref.Data)
				return
			}
			if err := deps.Store.UpdateSetting(ctx, ref.ChatID, "poll_interval_secs", secs); err != nil {
				log.ErrorContext(ctx, "Failed to update poll interval", "chat_id", ref.ChatID, "error", err)
				answerCallbackAlert(ctx, b, ref.QueryID, "Could not update the poll interval.")
				return
			}
			answerCallback(ctx, b, ref.QueryID, "Polling "+humanInterval(secs))
			refreshSettingsMenu(ctx, deps, b, ref)

		case action == "timezone":
			answerCallback(ctx, b, ref.QueryID, "")
			if _, err := sendText(ctx, b, ref.ChatID,
				"Send me your timezone as an IANA name, for example Europe/Berlin or America/New_York."); err != nil {
				log.ErrorContext(ctx, "Failed to send timezone prompt", "chat_id", ref.ChatID, "error", err)
				return
			}
			state := &database.ConversationState{ChatID: ref.ChatID, Kind: database.ExpectTimezone, MessageID: ref.MessageID}
			if err := deps.Store.SetConversationState(ctx, state); err != nil {
				log.ErrorContext(ctx, "Failed to save timezone expectation", "chat_id", ref.ChatID, "error", err)
			}

		case action == "logout":
			answerCallback(ctx, b, ref.QueryID, "")
			kbd := &telegram.Keyboard{}
			kbd.Add("Yes, disconnect", logoutCallbackPrefix+"confirm")
			kbd.Add("Cancel", settingsCallbackPrefix+"back")
			editSettingsMessage(ctx, deps, b, ref,
				"This will delete your API token and everything I remember about this chat. Are you sure?",
				kbd.Build(2))

		case action == "back":
			answerCallback(ctx, b, ref.QueryID, "")
			refreshSettingsMenu(ctx, deps, b, ref)

		case strings.HasPrefix(action, "toggle_"):
			column := strings.TrimPrefix(action, "toggle_")
			settings, err := deps.Store.GetSettings(ctx, ref.ChatID)
			if err != nil {
				log.ErrorContext(ctx, "Failed to load settings", "chat_id", ref.ChatID, "error", err)
				return
			}
			if err := deps.Store.UpdateSetting(ctx, ref.ChatID, column, !settingValue(settings, column)); err != nil {
				log.ErrorContext(ctx, "Failed to toggle setting", "chat_id", ref.ChatID, "column", column, "error", err)
				answerCallbackAlert(ctx, b, ref.QueryID, "Could not update that setting.")
				return
			}
			answerCallback(ctx, b, ref.QueryID, "")
			refreshSettingsMenu(ctx, deps, b, ref)

		default:
			log.WarnContext(ctx, "Unknown settings action", "data", ref.Data)
		}
	}
}

// refreshSettingsMenu re-renders the settings message from current state.
func refreshSettingsMenu(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, ref callbackRef) {
	settings, err := deps.Store.GetSettings(ctx, ref.ChatID)
	if err != nil {
		deps.Logger.ErrorContext(ctx, "Failed to reload settings", "chat_id", ref.ChatID, "error", err)
		return
	}
	editSettingsMessage(ctx, deps, b, ref, renderSettingsText(settings), settingsKeyboard(settings))
}

func editSettingsMessage(ctx context.Context, deps HandlerDeps, b *tgbot.Bot, ref callbackRef, text string, markup *models.InlineKeyboardMarkup) {
	_, err := b.EditMessageText(ctx, &tgbot.EditMessageTextParams{
		ChatID:      ref.ChatID,
		MessageID:   ref.MessageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil && !strings.Contains(err.Error(), "message is not modified") {
		deps.Logger.ErrorContext(ctx, "Failed to edit settings message", "chat_id", ref.ChatID, "error", err)
	}
}
