package repository

import (
	"context"
	"time"

	"example.com/remindbot/internal/domain"
)

// TaskRepository stores tasks in UTC and returns them in UTC.
// MarkThresholdSent is a compare-and-set: it reports true only for the call
// that actually flipped the flag, so concurrent callers can tell who won.
type TaskRepository interface {
	Insert(ctx context.Context, owner, title string, dueAt, createdAt time.Time) (int64, error)
	ListOpenFirst(ctx context.Context, owner string, limit int) ([]domain.Task, error)
	GetByID(ctx context.Context, id int64) (domain.Task, error)
	MarkDone(ctx context.Context, owner string, id int64) (bool, error)
	DueCandidates(ctx context.Context, limit int) ([]domain.Task, error)
	MarkThresholdSent(ctx context.Context, id int64, th domain.Threshold) (bool, error)
}
