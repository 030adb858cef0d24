package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"example.com/remindbot/internal/domain"
	"example.com/remindbot/internal/duetime"
	"example.com/remindbot/internal/repository"
)

const (
	DefaultListLimit = 50
	MaxTitleRunes    = 256
)

var (
	ErrInvalidText  = errors.New("task title is empty")
	ErrTitleTooLong = errors.New("task title is too long")
)

type TaskService struct {
	repo      repository.TaskRepository
	parser    *duetime.Parser
	now       func() time.Time
	listLimit int
}

func NewTaskService(repo repository.TaskRepository, parser *duetime.Parser, listLimit int) *TaskService {
	if listLimit <= 0 {
		listLimit = DefaultListLimit
	}
	return &TaskService{
		repo:      repo,
		parser:    parser,
		now:       time.Now,
		listLimit: listLimit,
	}
}

// WithClock replaces the time source. Tests use it to pin "now".
func (s *TaskService) WithClock(now func() time.Time) *TaskService {
	s.now = now
	return s
}

func (s *TaskService) Location() *time.Location {
	return s.parser.Location()
}

// Add parses timeText relative to the current time, rolling a past
// clock-only time over to tomorrow, and stores the task.
func (s *TaskService) Add(ctx context.Context, owner, title, timeText string) (domain.Task, error) {
	trimmed := strings.TrimSpace(title)
	if trimmed == "" {
		return domain.Task{}, ErrInvalidText
	}
	if utf8.RuneCountInString(trimmed) > MaxTitleRunes {
		return domain.Task{}, ErrTitleTooLong
	}
	now := s.now()
	dueAt, err := s.parser.Parse(timeText, now, true)
	if err != nil {
		return domain.Task{}, err
	}
	id, err := s.repo.Insert(ctx, owner, trimmed, dueAt.UTC(), now.UTC())
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}
	return s.toLocation(domain.Task{
		ID:        id,
		Owner:     owner,
		Title:     trimmed,
		DueAt:     dueAt,
		CreatedAt: now,
	}), nil
}

// List returns the owner's tasks, open ones first, earliest due first.
func (s *TaskService) List(ctx context.Context, owner string) ([]domain.Task, error) {
	items, err := s.repo.ListOpenFirst(ctx, owner, s.listLimit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	for i := range items {
		items[i] = s.toLocation(items[i])
	}
	return items, nil
}

// Done closes the task if the owner has one with that id. It reports
// whether anything changed; a missing or foreign id is not an error.
func (s *TaskService) Done(ctx context.Context, owner string, id int64) (bool, error) {
	ok, err := s.repo.MarkDone(ctx, owner, id)
	if err != nil {
		return false, fmt.Errorf("mark done: %w", err)
	}
	return ok, nil
}

func (s *TaskService) toLocation(t domain.Task) domain.Task {
	loc := s.parser.Location()
	t.DueAt = t.DueAt.In(loc)
	t.CreatedAt = t.CreatedAt.In(loc)
	return t
}
