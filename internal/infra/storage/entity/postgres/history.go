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

// historyStore implements entity.HistoryRepository. Events live in their own
// table with a monotonically increasing sequence so insertion order is
// preserved without touching the entity row.
var _ entity.HistoryRepository = (*historyStore)(nil)

type historyStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewHistoryStore creates a new PostgreSQL-backed history repository.
func NewHistoryStore(pool *pgxpool.Pool, tracer trace.Tracer) *historyStore {
	return &historyStore{db: pool, tracer: tracer}
}

func (r *historyStore) Append(ctx context.Context, entityID uuid.UUID, event entity.HistoryEvent) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", entityID.String()),
		attribute.String("event", event.Event()),
		attribute.Bool("successful", event.Successful()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.append_history", dbAttrs, func(ctx context.Context) error {
		logID, _ := event.LogID()
		_, err := r.db.Exec(ctx, `
			INSERT INTO history_events (entity_id, event, successful, ts, log_id, data)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			pgtype.UUID{Bytes: entityID, Valid: true},
			event.Event(),
			event.Successful(),
			pgtype.Timestamptz{Time: event.Timestamp(), Valid: true},
			nullableUUID(logID),
			[]byte(event.Data()),
		)
		if err != nil {
			return fmt.Errorf("append history error: %w", err)
		}
		return nil
	})
}

func (r *historyStore) List(ctx context.Context, entityID uuid.UUID) ([]entity.HistoryEvent, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", entityID.String()),
	)

	var out []entity.HistoryEvent
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_history", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT event, successful, ts, log_id, data
			FROM history_events WHERE entity_id = $1 ORDER BY seq`,
			pgtype.UUID{Bytes: entityID, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("list history query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				event      string
				successful bool
				ts         pgtype.Timestamptz
				logID      pgtype.UUID
				data       []byte
			)
			if err := rows.Scan(&event, &successful, &ts, &logID, &data); err != nil {
				return fmt.Errorf("scanning history event: %w", err)
			}
			out = append(out, entity.ReconstructHistoryEvent(event, successful, ts.Time, uuidOrNil(logID), data))
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}
