package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/schedule"
)

// Admin is the schedule administration surface: create/update/delete with
// validation at the door, keeping the engine's timers in sync with the store.
type Admin struct {
	schedules schedule.Repository
	engine    *Engine
}

// NewAdmin creates the administration service.
func NewAdmin(schedules schedule.Repository, engine *Engine) *Admin {
	return &Admin{schedules: schedules, engine: engine}
}

// Create validates and persists a new schedule, then registers its timer.
// Malformed cron or filter expressions fail with schedule.ErrInvalid before
// anything is persisted.
func (a *Admin) Create(ctx context.Context, courseID uuid.UUID, name, cronExpr string, schema []schedule.ActionStep, filter string) (*schedule.Schedule, error) {
	s, err := schedule.New(uuid.New(), courseID, name, cronExpr, schema, filter)
	if err != nil {
		return nil, err
	}

	if err := a.schedules.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("persisting schedule: %w", err)
	}
	if err := a.engine.Upsert(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Update revalidates and replaces an existing schedule's definition.
func (a *Admin) Update(ctx context.Context, id uuid.UUID, name, cronExpr string, schema []schedule.ActionStep, filter string) (*schedule.Schedule, error) {
	existing, err := a.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	s, err := schedule.New(id, existing.CourseID(), name, cronExpr, schema, filter)
	if err != nil {
		return nil, err
	}

	if err := a.schedules.Update(ctx, s); err != nil {
		return nil, fmt.Errorf("updating schedule: %w", err)
	}
	if err := a.engine.Upsert(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Delete removes the schedule and its timer.
func (a *Admin) Delete(ctx context.Context, id uuid.UUID) error {
	if err := a.schedules.Delete(ctx, id); err != nil {
		return err
	}
	a.engine.Remove(id)
	return nil
}

// Get fetches one schedule.
func (a *Admin) Get(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	return a.schedules.GetByID(ctx, id)
}

// List returns all schedules.
func (a *Admin) List(ctx context.Context) ([]*schedule.Schedule, error) {
	return a.schedules.List(ctx)
}
