package handlers

import (
	"fmt"
	"log/slog"

	tgbot "github.com/go-telegram/bot"

	"github.com/edgard/lanchebot/internal/telegram"
)

// RegisteredHandler represents a handler with its pattern and middleware. It
// encapsulates all information needed to register a command or callback.
type RegisteredHandler struct {
	HandlerType tgbot.HandlerType
	Pattern     string
	Handler     tgbot.HandlerFunc
	Middleware  []tgbot.Middleware
	MatchType   tgbot.MatchType
}

// RegisterAllCommands initializes and returns a map of all bot commands and
// callback handlers. Everything except /start and /register requires a
// registered chat.
func RegisterAllCommands(deps HandlerDeps) map[string]RegisteredHandler {
	handlers := make(map[string]RegisteredHandler)

	handlers["/start"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "start",
		Handler:     NewStartHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}
	handlers["/register"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "register",
		Handler:     NewRegisterHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
	}

	registered := []tgbot.Middleware{RegisteredOnly(deps)}

	handlers["/review"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "review",
		Handler:     NewReviewHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  registered,
	}
	handlers["/pending"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "pending",
		Handler:     NewPendingHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  registered,
	}
	handlers["/resync"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "resync",
		Handler:     NewResyncHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  registered,
	}
	handlers["/settings"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "settings",
		Handler:     NewSettingsHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  registered,
	}
	handlers["/logout"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeMessageText,
		Pattern:     "logout",
		Handler:     NewLogoutHandler(deps),
		MatchType:   tgbot.MatchTypeCommandStartOnly,
		Middleware:  registered,
	}

	// Transaction message buttons.
	txCallbacks := map[string]tgbot.HandlerFunc{
		telegram.CallbackReview:        NewMarkReviewedCallback(deps),
		telegram.CallbackUnreview:      NewMarkUnreviewedCallback(deps),
		telegram.CallbackSkip:          NewSkipCallback(deps),
		telegram.CallbackCollapse:      NewCollapseCallback(deps),
		telegram.CallbackExpand:        NewExpandCallback(deps),
		telegram.CallbackCategorize:    NewShowCategoriesCallback(deps),
		telegram.CallbackSubcategorize: NewShowSubcategoriesCallback(deps),
		telegram.CallbackApplyCategory: NewApplyCategoryCallback(deps),
		telegram.CallbackCancelCat:     NewCancelCategorizationCallback(deps),
		telegram.CallbackSuggest:       NewSuggestCategoryCallback(deps),
		telegram.CallbackRenamePayee:   NewRenamePayeeCallback(deps),
		telegram.CallbackEditNotes:     NewEditNotesCallback(deps),
		telegram.CallbackSetTags:       NewSetTagsCallback(deps),
	}
	for prefix, handler := range txCallbacks {
		handlers["cb:"+prefix] = RegisteredHandler{
			HandlerType: tgbot.HandlerTypeCallbackQueryData,
			Pattern:     prefix + "_",
			Handler:     handler,
			MatchType:   tgbot.MatchTypePrefix,
		}
	}

	handlers["cb:logout"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     logoutCallbackPrefix,
		Handler:     NewLogoutCallback(deps),
		MatchType:   tgbot.MatchTypePrefix,
	}

	// Settings menu buttons share one handler.
	handlers["cb:settings"] = RegisteredHandler{
		HandlerType: tgbot.HandlerTypeCallbackQueryData,
		Pattern:     settingsCallbackPrefix,
		Handler:     NewSettingsCallback(deps),
		MatchType:   tgbot.MatchTypePrefix,
	}

	return handlers
}

// applyMiddleware wraps a handler function with a slice of middleware.
// Middleware are applied in reverse order so the first one in the slice is
// the outermost.
func applyMiddleware(handler tgbot.HandlerFunc, mw []tgbot.Middleware) tgbot.HandlerFunc {
	for i := len(mw) - 1; i >= 0; i-- {
		handler = mw[i](handler)
	}
	return handler
}

// Register registers command and callback handlers with the Telegram bot
// instance, applying each handler's middleware.
func Register(b *tgbot.Bot, logger *slog.Logger, registeredHandlers map[string]RegisteredHandler) error {
	if b == nil {
		return fmt.Errorf("bot instance cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "handler_registry")

	if len(registeredHandlers) == 0 {
		log.Warn("No handlers provided for registration.")
		return nil
	}

	log.Info("Registering Telegram handlers...", "count", len(registeredHandlers))

	for _, regHandler := range registeredHandlers {
		if regHandler.Handler == nil {
			log.Warn("Skipping registration for nil handler", "pattern", regHandler.Pattern)
			continue
		}

		finalHandler := applyMiddleware(regHandler.Handler, regHandler.Middleware)
		b.RegisterHandler(regHandler.HandlerType, regHandler.Pattern, regHandler.MatchType, finalHandler)
		log.Debug("Registered handler", "pattern", regHandler.Pattern, "match_type", regHandler.MatchType, "middleware_count", len(regHandler.Middleware))
	}

	log.Info("Registered Telegram handlers successfully", "count", len(registeredHandlers))
	return nil
}
