package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"example.com/remindbot/internal/reminder"
	"example.com/remindbot/internal/repository"
)

const DefaultBatch = 200

var ErrTickInProgress = errors.New("tick already in progress")

// Notifier delivers a message to a chat. Implementations bound their own
// latency; a returned error means the message was not delivered.
type Notifier interface {
	Notify(ctx context.Context, chatID, text string) error
}

type Scheduler struct {
	repo     repository.TaskRepository
	notifier Notifier
	logger   *slog.Logger
	batch    int

	// running keeps overlapping ticks from both seeing a threshold as
	// unsent and delivering it twice.
	running sync.Mutex
}

func New(repo repository.TaskRepository, notifier Notifier, logger *slog.Logger, batch int) *Scheduler {
	if batch <= 0 {
		batch = DefaultBatch
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		batch:    batch,
	}
}

// Tick sends every reminder that is due at now and has not been sent yet,
// and returns how many were delivered. Delivery failures are logged and
// left unflagged so the next tick retries them.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) (int, error) {
	if !s.running.TryLock() {
		s.logger.Debug("tick skipped, previous tick still running")
		return 0, ErrTickInProgress
	}
	defer s.running.Unlock()

	tasks, err := s.repo.DueCandidates(ctx, s.batch)
	if err != nil {
		return 0, fmt.Errorf("load due candidates: %w", err)
	}

	// A send and its flag write always complete together. Cancelling ctx
	// only stops the tick before the next task.
	work := context.WithoutCancel(ctx)
	sent := 0
	for _, task := range tasks {
		if ctx.Err() != nil {
			s.logger.Info("tick interrupted", "reason", ctx.Err(), "sent", sent)
			break
		}
		for _, th := range reminder.Firing(task, now) {
			log := s.logger.With("task_id", task.ID, "threshold", th.String())
			if err := s.notifier.Notify(work, task.Owner, reminder.Message(th, task.Title)); err != nil {
				log.Warn("reminder delivery failed", "error", err)
				continue
			}
			sent++
			flipped, err := s.repo.MarkThresholdSent(work, task.ID, th)
			if err != nil {
				log.Error("reminder sent but flag not persisted", "error", err)
				continue
			}
			if !flipped {
				log.Warn("reminder flag was already set")
				continue
			}
			log.Info("reminder sent")
		}
	}
	if sent > 0 {
		s.logger.Info("tick finished", "candidates", len(tasks), "sent", sent)
	}
	return sent, nil
}

// Run ticks every interval until ctx is cancelled. It is an alternative to
// an external pinger hitting the tick endpoint; both may run at once.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration, now func() time.Time) {
	if interval <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", "interval", interval.String(), "batch", s.batch)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			if _, err := s.Tick(ctx, now()); err != nil && !errors.Is(err, ErrTickInProgress) {
				s.logger.Error("tick failed", "error", err)
			}
		}
	}
}
