package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"example.com/remindbot/internal/completion"
	"example.com/remindbot/internal/config"
	"example.com/remindbot/internal/duetime"
	httphandlers "example.com/remindbot/internal/handler/http"
	"example.com/remindbot/internal/repository"
	"example.com/remindbot/internal/scheduler"
	"example.com/remindbot/internal/storage/memory"
	sqlstore "example.com/remindbot/internal/storage/sql"
	"example.com/remindbot/internal/telegram"
	"example.com/remindbot/internal/usecase"
)

type App struct {
	Config    config.Config
	Router    http.Handler
	Store     repository.TaskRepository
	Bot       *telegram.Bot
	Scheduler *scheduler.Scheduler

	closeStore func() error
}

// New wires the store, the command dispatcher, the Telegram transport and
// the reminder scheduler from cfg. cfg must already be validated.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	var (
		store      repository.TaskRepository
		pinger     httphandlers.Pinger
		closeStore = func() error { return nil }
	)
	switch cfg.Storage {
	case config.StorageSQLite, config.StoragePostgres:
		driver := sqlstore.DriverSQLite
		if cfg.Storage == config.StoragePostgres {
			driver = sqlstore.DriverPostgres
		}
		s, err := sqlstore.Open(ctx, driver, cfg.DBDSN)
		if err != nil {
			return nil, fmt.Errorf("open %s store: %w", cfg.Storage, err)
		}
		store, pinger, closeStore = s, s, s.Close
	default:
		logger.Warn("using in-memory store, tasks are lost on restart")
		store = memory.New()
	}

	backend, err := completion.New(completion.Options{
		Backend: cfg.Completion.Backend,
		APIKey:  cfg.Completion.APIKey,
		Model:   cfg.Completion.Model,
		BaseURL: cfg.Completion.BaseURL,
		Timeout: cfg.OutboundTimeout,
	})
	if err != nil {
		_ = closeStore()
		return nil, fmt.Errorf("completion backend: %w", err)
	}

	tasks := usecase.NewTaskService(store, duetime.NewParser(loc), cfg.ListLimit)
	dispatcher := usecase.NewDispatcher(tasks, backend, cfg.Completion.SystemStyle, cfg.OutboundTimeout, logger.With("component", "dispatcher"))

	client := telegram.NewClient(cfg.BotToken)
	if cfg.TelegramAPI != "" {
		client.WithBaseURL(cfg.TelegramAPI)
	}
	notifier := telegram.NewNotifier(client, cfg.SendRate, cfg.OutboundTimeout, logger.With("component", "telegram"))
	bot := telegram.NewBot(client, dispatcher, notifier, logger.With("component", "bot"), 0)
	sched := scheduler.New(store, notifier, logger.With("component", "scheduler"), cfg.TickBatch)

	router := httphandlers.New(bot, sched, pinger, cfg.WebhookSecret, time.Now, logger.With("component", "http"))

	logger.Info("app wired",
		"storage", cfg.Storage,
		"mode", cfg.Mode,
		"completion", cfg.Completion.Backend,
		"timezone", loc.String(),
	)
	return &App{
		Config:     cfg,
		Router:     router,
		Store:      store,
		Bot:        bot,
		Scheduler:  sched,
		closeStore: closeStore,
	}, nil
}

func (a *App) Close() error {
	return a.closeStore()
}
