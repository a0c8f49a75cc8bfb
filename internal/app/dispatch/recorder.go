package dispatch

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// HistoryRecorder appends outcome events to an entity's audit trail.
// All history-producing work is serialized by the lock manager, so appends
// for one entity never race each other.
type HistoryRecorder struct {
	history entity.HistoryRepository
}

// NewHistoryRecorder creates a recorder over the given history repository.
func NewHistoryRecorder(history entity.HistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{history: history}
}

// Record appends a single event. Events are immutable once appended.
func (hr *HistoryRecorder) Record(ctx context.Context, entityID uuid.UUID, event entity.HistoryEvent) error {
	if err := hr.history.Append(ctx, entityID, event); err != nil {
		return fmt.Errorf("appending history event %q: %w", event.Event(), err)
	}
	return nil
}

// List returns the entity's history in append order.
func (hr *HistoryRecorder) List(ctx context.Context, entityID uuid.UUID) ([]entity.HistoryEvent, error) {
	return hr.history.List(ctx, entityID)
}
