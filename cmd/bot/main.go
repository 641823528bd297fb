// Package main contains the entrypoint for the Telegram bot application.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/edgard/lanchebot/internal/ai"
	"github.com/edgard/lanchebot/internal/bot"
	"github.com/edgard/lanchebot/internal/bot/handlers"
	"github.com/edgard/lanchebot/internal/bot/tasks"
	"github.com/edgard/lanchebot/internal/config"
	"github.com/edgard/lanchebot/internal/database"
	"github.com/edgard/lanchebot/internal/logger"
	"github.com/edgard/lanchebot/internal/lunchmoney"
	"github.com/edgard/lanchebot/internal/poller"
	"github.com/edgard/lanchebot/internal/reconciler"
	"github.com/edgard/lanchebot/internal/telegram"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes and starts all application components (config, logger, db,
// upstream client factory, engine, bot, scheduler), handles graceful
// shutdown, and returns an exit code (0 for success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Logger.Level, cfg.Logger.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Logger.Level, "json", cfg.Logger.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	store := database.NewStore(db, log)

	// AI categorization is optional; without a key the suggestion buttons are
	// simply not rendered.
	var categorizer ai.Categorizer
	if cfg.Gemini.APIKey != "" {
		categorizer, err = ai.NewCategorizer(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini categorizer", "error", err)
			return 1
		}
	} else {
		log.Info("No Gemini API key configured, category suggestions disabled")
	}

	// One upstream client per chat token.
	newProvider := func(token string) reconciler.Provider {
		return lunchmoney.NewClient(token, lunchmoney.WithLogger(log))
	}

	hDeps := handlers.HandlerDeps{
		Logger:      log,
		Config:      cfg,
		Store:       store,
		Categorizer: categorizer,
		NewProvider: newProvider,
	}

	// The default handler needs the engine, which in turn needs the bot
	// instance, so it is bound after the full wiring below.
	var defaultHandler tgbot.HandlerFunc
	botOpts := []tgbot.Option{
		tgbot.WithMiddlewares(logger.Middleware(log)),
		tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
			if defaultHandler != nil {
				defaultHandler(ctx, b, update)
			}
		}),
	}
	tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
	if err != nil {
		log.Error("Failed to create Telegram bot", "error", err)
		return 1
	}

	// Retrieve bot info and store it in the config for runtime use
	cfg.Telegram.BotInfo, err = tg.GetMe(ctx)
	if err != nil {
		log.Error("Failed to get bot info", "error", err)
		return 1
	}
	log.Info("Retrieved bot info", "bot_id", cfg.Telegram.BotInfo.ID, "bot_username", cfg.Telegram.BotInfo.Username)

	transport := telegram.NewTransport(tg, log, categorizer != nil)
	engine := reconciler.New(store, transport, newProvider, log)
	hDeps.Engine = engine
	hDeps.Transport = transport
	defaultHandler = handlers.NewMessageHandler(hDeps)

	if err := handlers.Register(tg, log, handlers.RegisterAllCommands(hDeps)); err != nil {
		log.Error("Failed to register Telegram handlers", "error", err)
		return 1
	}

	tDeps := tasks.TaskDeps{
		Logger: log,
		Store:  store,
		Poller: poller.New(store, engine, log),
		Config: cfg,
	}

	sched := bot.NewScheduler(log, &cfg.Scheduler, tasks.RegisterAllTasks(tDeps))
	app := bot.NewBot(log, cfg, db, store, tg, sched)

	log.Info("Starting bot...")
	runErr := app.Run(ctx) // Run blocks until context is cancelled or an error occurs
	log.Info("Bot run loop finished. Initiating shutdown...")

	// Check if the error is significant (not just context cancellation)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Bot stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Bot stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
