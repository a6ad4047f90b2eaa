package plan

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepository is an in-memory Repository for tests and dev mode.
type MemoryRepository struct {
	mu    sync.Mutex
	plans map[string]Plan
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{plans: make(map[string]Plan)}
}

func (r *MemoryRepository) Create(_ context.Context, p Plan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[p.ID] = p
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return Plan{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) DueBefore(_ context.Context, t time.Time) ([]Plan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []Plan
	for _, p := range r.plans {
		if p.Status != StatusActive || p.NextPayoutAt == nil {
			continue
		}
		if !p.NextPayoutAt.After(t) {
			due = append(due, p)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextPayoutAt.Before(*due[j].NextPayoutAt)
	})
	return due, nil
}

func (r *MemoryRepository) AdvanceSchedule(_ context.Context, id string, last time.Time, next *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return ErrNotFound
	}
	p.LastPayoutAt = &last
	p.NextPayoutAt = next
	r.plans[id] = p
	return nil
}

func (r *MemoryRepository) MarkCompleted(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plans[id]
	if !ok {
		return ErrNotFound
	}
	p.Status = StatusCompleted
	p.NextPayoutAt = nil
	r.plans[id] = p
	return nil
}
