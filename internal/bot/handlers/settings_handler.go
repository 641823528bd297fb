package handlers

import (
	"context"
	"fmt"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/telegram"
)

// settingsCallbackPrefix namespaces the settings menu buttons.
const settingsCallbackPrefix = "settings_"

// toggleableSettings maps menu actions to their settings column and label.
// The column names double as the callback payload.
var toggleableSettings = []struct {
	Column string
	Label  string
}{
	{"auto_mark_reviewed", "Auto-mark new transactions reviewed"},
	{"poll_pending", "Poll pending instead of posted"},
	{"show_datetime", "Show full date and time"},
	{"tagging", "Render names as hashtags"},
	{"mark_reviewed_after_categorized", "Mark reviewed after categorizing"},
	{"auto_categorize_after_notes", "Auto-categorize after adding notes"},
}

// pollIntervalPresets are the selectable polling intervals, in seconds. Zero
// disables polling.
var pollIntervalPresets = []int64{300, 1800, 3600, 14400, 86400, 0}

func settingValue(settings *database.Settings, column string) bool {
	switch column {
	case "auto_mark_reviewed":
		return settings.AutoMarkReviewed
	case "poll_pending":
		return settings.PollPending
	case "show_datetime":
		return settings.ShowDateTime
	case "tagging":
		return settings.Tagging
	case "mark_reviewed_after_categorized":
		return settings.MarkReviewedAfterCategorized
	case "auto_categorize_after_notes":
		return settings.AutoCategorizeAfterNotes
	}
	return false
}

func checkbox(on bool) string {
	if on {
		return "☑️"
	}
	return "☐"
}

// humanInterval renders a poll interval for the settings text and buttons.
func humanInterval(secs int64) string {
	if secs == 0 {
		return "disabled"
	}
	d := time.Duration(secs) * time.Second
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("every %d hours", int(d.Hours()))
	case d >= time.Hour:
		if d == time.Hour {
			return "every hour"
		}
		return fmt.Sprintf("every %d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("every %d minutes", int(d.Minutes()))
	}
}

// renderSettingsText builds the body of the settings message.
func renderSettingsText(settings *database.Settings) string {
	text := "Settings\n\n"
	text += fmt.Sprintf("Polling: %s\n", humanInterval(settings.PollIntervalSecs))
	text += fmt.Sprintf("Timezone: %s\n\n", settings.Timezone)
	for _, toggle := range toggleableSettings {
		text += fmt.Sprintf("%s %s\n", checkbox(settingValue(settings, toggle.Column)), toggle.Label)
	}
	return text
}

// settingsKeyboard builds the main settings menu.
func settingsKeyboard(settings *database.Settings) *models.InlineKeyboardMarkup {
	kbd := &telegram.Keyboard{}
	for _, toggle := range toggleableSettings {
		kbd.Add(fmt.Sprintf("%s %s", checkbox(settingValue(settings, toggle.Column)), toggle.Label),
			settingsCallbackPrefix+"toggle_"+toggle.Column)
	}
	kbd.Add("Change poll interval", settingsCallbackPrefix+"interval")
	kbd.Add("Change timezone", settingsCallbackPrefix+"timezone")
	kbd.Add("Disconnect account", settingsCallbackPrefix+"logout")
	kbd.Add("Done", settingsCallbackPrefix+"done")
	return kbd.Build(1)
}

// intervalKeyboard builds the poll-interval preset menu.
func intervalKeyboard() *models.InlineKeyboardMarkup {
	kbd := &telegram.Keyboard{}
	for _, secs := range pollIntervalPresets {
		kbd.Add(humanInterval(secs), fmt.Sprintf("%sinterval_%d", settingsCallbackPrefix, secs))
	}
	kbd.Add("Back", settingsCallbackPrefix+"back")
	return kbd.Build(2)
}

// NewSettingsHandler shows the settings menu.
func NewSettingsHandler(deps HandlerDeps) tgbot.HandlerFunc {
	log := deps.Logger.With("handler", "settings")

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

		_, err = b.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:      chatID,
			Text:        renderSettingsText(settings),
			ReplyMarkup: settingsKeyboard(settings),
		})
		if err != nil {
			log.ErrorContext(ctx, "Failed to send settings menu", "chat_id", chatID, "error", err)
		}
	}
}
