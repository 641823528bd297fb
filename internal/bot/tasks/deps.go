// Package tasks implements the bot's scheduled tasks: the transaction poll
// tick and database maintenance.
package tasks

import (
	"log/slog"

	"github.com/edgard/lanchebot/internal/config"
	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/poller"
)

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger *slog.Logger
	Store  database.Store
	Poller *poller.Poller
	Config *config.Config
}
