package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/pkg/common/logger"
)

// LockManager guards per-entity action exclusivity. Acquisition is delegated
// to the repository's conditional update so that the check-and-set is a
// single atomic step against the store, not application-level read-then-write.
type LockManager struct {
	locks  entity.LockRepository
	logger *logger.Logger
}

// NewLockManager creates a lock manager over the given lock repository.
func NewLockManager(locks entity.LockRepository, log *logger.Logger) *LockManager {
	return &LockManager{locks: locks, logger: log}
}

// Acquire takes the entity's lock, failing with entity.ErrLocked when
// another action is in progress. The returned handle must be released on
// every exit path; callers defer Release immediately after acquisition.
func (lm *LockManager) Acquire(ctx context.Context, entityID uuid.UUID) (*LockHandle, error) {
	if err := lm.locks.AcquireLock(ctx, entityID); err != nil {
		return nil, err
	}
	return &LockHandle{entityID: entityID, lm: lm}, nil
}

// RecoverAbandoned clears locked on all entities. Run once at process start:
// a crash mid-action leaves the flag set, and an abandoned lock must not
// permanently block future actions.
func (lm *LockManager) RecoverAbandoned(ctx context.Context) error {
	released, err := lm.locks.ReleaseAllLocks(ctx)
	if err != nil {
		return fmt.Errorf("recovering abandoned locks: %w", err)
	}
	if released > 0 {
		lm.logger.Warn(ctx, "cleared abandoned entity locks", "count", released)
	}
	return nil
}

// LockHandle represents one held entity lock.
type LockHandle struct {
	entityID uuid.UUID
	lm       *LockManager

	once sync.Once
}

// Release unconditionally clears the lock, regardless of how the action
// terminated. Safe to call more than once.
func (h *LockHandle) Release(ctx context.Context) {
	h.once.Do(func() {
		if err := h.lm.locks.ReleaseLock(ctx, h.entityID); err != nil {
			h.lm.logger.Error(ctx, "releasing entity lock", "entity_id", h.entityID, "err", err)
		}
	})
}
