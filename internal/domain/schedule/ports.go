package schedule

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists schedule records.
type Repository interface {
	Create(ctx context.Context, s *Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*Schedule, error)
	Update(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context) ([]*Schedule, error)

	// TryMarkRunning sets running=true iff it is currently false, as a single
	// atomic step against the store. Returns false when the previous run is
	// still in flight, in which case the tick is skipped, not queued.
	TryMarkRunning(ctx context.Context, id uuid.UUID) (bool, error)

	// ClearRunning unconditionally clears the running flag.
	ClearRunning(ctx context.Context, id uuid.UUID) error

	// ClearAllRunning clears the running flag on every schedule. Invoked once
	// at process start so a crash mid-run cannot skip every later tick.
	ClearAllRunning(ctx context.Context) (int64, error)
}
