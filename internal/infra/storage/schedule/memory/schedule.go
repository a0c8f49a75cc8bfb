// Package memory provides an in-memory schedule repository for testing
// and development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/schedule"
)

// ScheduleStore is an in-memory schedule.Repository.
type ScheduleStore struct {
	mu        sync.Mutex
	schedules map[uuid.UUID]*storedSchedule
	order     []uuid.UUID
}

type storedSchedule struct {
	s       *schedule.Schedule
	running bool
}

// NewScheduleStore creates a new in-memory schedule store.
func NewScheduleStore() *ScheduleStore {
	return &ScheduleStore{schedules: make(map[uuid.UUID]*storedSchedule)}
}

func (st *ScheduleStore) Create(ctx context.Context, s *schedule.Schedule) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.schedules[s.ID()] = &storedSchedule{s: s, running: s.Running()}
	st.order = append(st.order, s.ID())
	return nil
}

func (st *ScheduleStore) GetByID(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, exists := st.schedules[id]
	if !exists {
		return nil, schedule.ErrNotFound
	}
	return reconstruct(stored)
}

func (st *ScheduleStore) Update(ctx context.Context, s *schedule.Schedule) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, exists := st.schedules[s.ID()]
	if !exists {
		return schedule.ErrNotFound
	}
	stored.s = s
	return nil
}

func (st *ScheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, exists := st.schedules[id]; !exists {
		return schedule.ErrNotFound
	}
	delete(st.schedules, id)
	for i, oid := range st.order {
		if oid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}
	return nil
}

func (st *ScheduleStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*schedule.Schedule, 0, len(st.order))
	for _, id := range st.order {
		s, err := reconstruct(st.schedules[id])
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (st *ScheduleStore) TryMarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	stored, exists := st.schedules[id]
	if !exists {
		return false, schedule.ErrNotFound
	}
	if stored.running {
		return false, nil
	}
	stored.running = true
	return true, nil
}

func (st *ScheduleStore) ClearRunning(ctx context.Context, id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if stored, exists := st.schedules[id]; exists {
		stored.running = false
	}
	return nil
}

func (st *ScheduleStore) ClearAllRunning(ctx context.Context) (int64, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	var cleared int64
	for _, stored := range st.schedules {
		if stored.running {
			stored.running = false
			cleared++
		}
	}
	return cleared, nil
}

func reconstruct(stored *storedSchedule) (*schedule.Schedule, error) {
	s := stored.s
	return schedule.Reconstruct(s.ID(), s.CourseID(), s.Name(), s.CronExpr(), s.Schema(), s.InstanceFilter(), stored.running)
}
