package entity

import (
	"context"

	"github.com/google/uuid"
)

// Repository provides persistent access to entity records.
type Repository interface {
	Create(ctx context.Context, e *Entity) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entity, error)
	Update(ctx context.Context, e *Entity) error

	// ListCourseInstances returns all course instances belonging to a course
	// definition, in the store's natural retrieval order.
	ListCourseInstances(ctx context.Context, courseID uuid.UUID) ([]*Entity, error)
}

// LockRepository flips the locked flag with conditional-update semantics.
// Only the lock manager may use this port.
type LockRepository interface {
	// AcquireLock sets locked=true iff it is currently false, as a single
	// atomic step against the store. Returns ErrLocked if already held and
	// ErrNotFound if the entity does not exist.
	AcquireLock(ctx context.Context, id uuid.UUID) error

	// ReleaseLock unconditionally clears the locked flag.
	ReleaseLock(ctx context.Context, id uuid.UUID) error

	// ReleaseAllLocks clears locked on every entity. Invoked once at process
	// start to recover locks abandoned by a crash mid-action.
	ReleaseAllLocks(ctx context.Context) (int64, error)
}

// HistoryRepository appends to and reads an entity's audit trail.
// Appends never reorder or remove prior entries.
type HistoryRepository interface {
	Append(ctx context.Context, entityID uuid.UUID, event HistoryEvent) error
	List(ctx context.Context, entityID uuid.UUID) ([]HistoryEvent, error)
}
