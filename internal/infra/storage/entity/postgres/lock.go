package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/infra/storage"
)

// lockStore implements entity.LockRepository. Acquisition is a conditional
// update so that two concurrent callers can never both observe locked=false:
// the database serializes the row update and exactly one caller flips it.
var _ entity.LockRepository = (*lockStore)(nil)

type lockStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewLockStore creates a new PostgreSQL-backed lock repository.
func NewLockStore(pool *pgxpool.Pool, tracer trace.Tracer) *lockStore {
	return &lockStore{db: pool, tracer: tracer}
}

func (r *lockStore) AcquireLock(ctx context.Context, id uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", id.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.acquire_lock", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE entities SET locked = TRUE, updated_at = NOW()
			WHERE id = $1 AND NOT locked`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("acquire lock error: %w", err)
		}
		if tag.RowsAffected() == 1 {
			return nil
		}

		// Zero rows: either the entity is already locked or it is absent.
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM entities WHERE id = $1)`,
			pgtype.UUID{Bytes: id, Valid: true},
		).Scan(&exists); err != nil {
			return fmt.Errorf("acquire lock existence check error: %w", err)
		}
		if !exists {
			return entity.ErrNotFound
		}
		return entity.ErrLocked
	})
}

func (r *lockStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", id.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.release_lock", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			UPDATE entities SET locked = FALSE, updated_at = NOW()
			WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("release lock error: %w", err)
		}
		return nil
	})
}

func (r *lockStore) ReleaseAllLocks(ctx context.Context) (int64, error) {
	var released int64
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.release_all_locks", defaultDBAttributes, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `UPDATE entities SET locked = FALSE WHERE locked`)
		if err != nil {
			return fmt.Errorf("release all locks error: %w", err)
		}
		released = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return released, nil
}
