package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultSendTimeout = 20 * time.Second
	// Telegram allows roughly 30 messages per second per bot.
	DefaultSendRate = 25
)

type sender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}

// Notifier delivers outbound messages with a per-call timeout and shared
// pacing so that reminder bursts after downtime stay under Telegram's limit.
type Notifier struct {
	client  sender
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

func NewNotifier(client sender, perSecond float64, timeout time.Duration, logger *slog.Logger) *Notifier {
	if perSecond <= 0 {
		perSecond = DefaultSendRate
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Notifier{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), max(1, int(perSecond))),
		timeout: timeout,
		logger:  logger,
	}
}

// Notify sends text to chatID. The returned error is informational: the
// failure has already been logged.
func (n *Notifier) Notify(ctx context.Context, chatID, text string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	if err := n.limiter.Wait(ctx); err != nil {
		n.logger.Warn("telegram send throttled past deadline", "chat_id", chatID, "error", err)
		return fmt.Errorf("wait for send slot: %w", err)
	}
	if err := n.client.SendMessage(ctx, chatID, text); err != nil {
		n.logger.Warn("telegram send failed", "chat_id", chatID, "error", err)
		return err
	}
	return nil
}
