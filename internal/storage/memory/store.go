package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"example.com/remindbot/internal/domain"
	"example.com/remindbot/internal/storage"
)

type Store struct {
	mu     sync.Mutex
	tasks  []domain.Task
	nextID int64
}

func New() *Store {
	return &Store{tasks: make([]domain.Task, 0, 16), nextID: 1}
}

func (s *Store) Insert(_ context.Context, owner, title string, dueAt, createdAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.tasks = append(s.tasks, domain.Task{
		ID:        id,
		Owner:     owner,
		Title:     title,
		DueAt:     dueAt.UTC(),
		CreatedAt: createdAt.UTC(),
	})
	return id, nil
}

func (s *Store) ListOpenFirst(_ context.Context, owner string, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if t.Owner == owner {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Done != out[j].Done {
			return !out[i].Done
		}
		return lessDue(out[i], out[j])
	})
	return capped(out, limit), nil
}

func (s *Store) GetByID(_ context.Context, id int64) (domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return domain.Task{}, storage.ErrNotFound
	}
	return s.tasks[i], nil
}

func (s *Store) MarkDone(_ context.Context, owner string, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 || s.tasks[i].Owner != owner {
		return false, nil
	}
	s.tasks[i].Done = true
	return true, nil
}

func (s *Store) DueCandidates(_ context.Context, limit int) ([]domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Task
	for _, t := range s.tasks {
		if !t.Done {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return lessDue(out[i], out[j]) })
	return capped(out, limit), nil
}

func (s *Store) MarkThresholdSent(_ context.Context, id int64, th domain.Threshold) (bool, error) {
	if _, err := storage.SentColumn(th); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(id)
	if i < 0 {
		return false, storage.ErrNotFound
	}
	if s.tasks[i].Sent.Has(th) {
		return false, nil
	}
	s.tasks[i].Sent = s.tasks[i].Sent.With(th)
	return true, nil
}

func (s *Store) index(id int64) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func lessDue(a, b domain.Task) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.ID < b.ID
}

func capped(items []domain.Task, limit int) []domain.Task {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
