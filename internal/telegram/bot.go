package telegram

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"example.com/remindbot/internal/usecase"
)

// Bot turns incoming updates into dispatcher calls and sends the reply. The
// webhook handler feeds it one update at a time; Run feeds it from
// long polling when no public webhook URL is available.
type Bot struct {
	client      *Client
	dispatcher  *usecase.Dispatcher
	notifier    *Notifier
	logger      *slog.Logger
	pollTimeout time.Duration
}

func NewBot(client *Client, dispatcher *usecase.Dispatcher, notifier *Notifier, logger *slog.Logger, pollTimeout time.Duration) *Bot {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bot{
		client:      client,
		dispatcher:  dispatcher,
		notifier:    notifier,
		logger:      logger,
		pollTimeout: pollTimeout,
	}
}

// HandleUpdate dispatches one update and sends exactly one reply. Updates
// without a chat are ignored and report false.
func (b *Bot) HandleUpdate(ctx context.Context, upd Update) bool {
	chatID := upd.ChatID()
	if chatID == "" {
		return false
	}
	reply := b.dispatcher.Handle(ctx, chatID, upd.Message.Text)
	// Delivery errors are already logged by the notifier.
	_ = b.notifier.Notify(ctx, chatID, reply)
	return true
}

func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("telegram long polling started")
	offset := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := b.client.GetUpdates(ctx, offset, b.pollTimeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			b.logger.Warn("telegram getUpdates failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
			continue
		}
		for _, upd := range updates {
			offset = upd.UpdateID + 1
			b.HandleUpdate(ctx, upd)
		}
	}
}
