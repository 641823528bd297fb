package handlers

import (
	"log/slog"

	"github.com/edgard/lanchebot/internal/ai"
	"github.com/edgard/lanchebot/internal/config"
	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/reconciler"
	"github.com/edgard/lanchebot/internal/telegram"
)

// HandlerDeps provides dependencies for Telegram command and callback
// handlers.
type HandlerDeps struct {
	Logger    *slog.Logger
	Config    *config.Config
	Store     database.Store
	Engine    *reconciler.Engine
	Transport *telegram.Transport

	// Categorizer is nil when no AI key is configured.
	Categorizer ai.Categorizer

	// NewProvider builds an upstream client for a raw token, used during
	// registration before the token is persisted.
	NewProvider func(token string) reconciler.Provider
}
