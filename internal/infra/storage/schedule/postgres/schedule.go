// Package postgres provides PostgreSQL-backed storage for schedules,
// including the conditional update backing the re-entrancy guard.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/domain/schedule"
	"github.com/opencampus/campusd/internal/infra/storage"
)

var _ schedule.Repository = (*scheduleStore)(nil)

type scheduleStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewScheduleStore creates a new PostgreSQL-backed schedule repository.
func NewScheduleStore(pool *pgxpool.Pool, tracer trace.Tracer) *scheduleStore {
	return &scheduleStore{db: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

func (r *scheduleStore) Create(ctx context.Context, s *schedule.Schedule) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", s.ID().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_schedule", dbAttrs, func(ctx context.Context) error {
		schema, err := json.Marshal(s.Schema())
		if err != nil {
			return fmt.Errorf("marshaling schema: %w", err)
		}

		_, err = r.db.Exec(ctx, `
			INSERT INTO schedules (id, course_id, name, cron_expr, schema, instance_filter, running)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			pgtype.UUID{Bytes: s.ID(), Valid: true},
			pgtype.UUID{Bytes: s.CourseID(), Valid: true},
			s.Name(),
			s.CronExpr(),
			schema,
			s.InstanceFilter(),
			s.Running(),
		)
		if err != nil {
			return fmt.Errorf("insert schedule error: %w", err)
		}
		return nil
	})
}

func (r *scheduleStore) GetByID(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", id.String()),
	)

	var s *schedule.Schedule
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_schedule", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, course_id, name, cron_expr, schema, instance_filter, running
			FROM schedules WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)

		var err error
		s, err = scanSchedule(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return schedule.ErrNotFound
			}
			return fmt.Errorf("get schedule query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (r *scheduleStore) Update(ctx context.Context, s *schedule.Schedule) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", s.ID().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_schedule", dbAttrs, func(ctx context.Context) error {
		schema, err := json.Marshal(s.Schema())
		if err != nil {
			return fmt.Errorf("marshaling schema: %w", err)
		}

		// The running column is deliberately absent: only the conditional
		// update in TryMarkRunning/ClearRunning may flip it.
		tag, err := r.db.Exec(ctx, `
			UPDATE schedules SET
				name = $2, cron_expr = $3, schema = $4, instance_filter = $5, updated_at = NOW()
			WHERE id = $1`,
			pgtype.UUID{Bytes: s.ID(), Valid: true},
			s.Name(),
			s.CronExpr(),
			schema,
			s.InstanceFilter(),
		)
		if err != nil {
			return fmt.Errorf("update schedule error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return schedule.ErrNotFound
		}
		return nil
	})
}

func (r *scheduleStore) Delete(ctx context.Context, id uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", id.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.delete_schedule", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `DELETE FROM schedules WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("delete schedule error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return schedule.ErrNotFound
		}
		return nil
	})
}

func (r *scheduleStore) List(ctx context.Context) ([]*schedule.Schedule, error) {
	var out []*schedule.Schedule
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_schedules", defaultDBAttributes, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, course_id, name, cron_expr, schema, instance_filter, running
			FROM schedules ORDER BY created_at`)
		if err != nil {
			return fmt.Errorf("list schedules query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSchedule(rows)
			if err != nil {
				return fmt.Errorf("scanning schedule: %w", err)
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *scheduleStore) TryMarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", id.String()),
	)

	var acquired bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.try_mark_running", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE schedules SET running = TRUE, updated_at = NOW()
			WHERE id = $1 AND NOT running`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("try mark running error: %w", err)
		}
		acquired = tag.RowsAffected() == 1
		if acquired {
			return nil
		}

		// Zero rows means either the guard is up or the schedule is gone.
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schedules WHERE id = $1)`,
			pgtype.UUID{Bytes: id, Valid: true},
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking schedule existence: %w", err)
		}
		if !exists {
			return schedule.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return acquired, nil
}

func (r *scheduleStore) ClearRunning(ctx context.Context, id uuid.UUID) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("schedule_id", id.String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.clear_running", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			UPDATE schedules SET running = FALSE, updated_at = NOW()
			WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("clear running error: %w", err)
		}
		return nil
	})
}

func (r *scheduleStore) ClearAllRunning(ctx context.Context) (int64, error) {
	var cleared int64
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.clear_all_running", defaultDBAttributes, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, `
			UPDATE schedules SET running = FALSE, updated_at = NOW()
			WHERE running`)
		if err != nil {
			return fmt.Errorf("clear all running error: %w", err)
		}
		cleared = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}

	return cleared, nil
}

func scanSchedule(row pgx.Row) (*schedule.Schedule, error) {
	var (
		id, courseID   pgtype.UUID
		name, cronExpr string
		schemaRaw      []byte
		instanceFilter string
		running        bool
	)
	if err := row.Scan(&id, &courseID, &name, &cronExpr, &schemaRaw, &instanceFilter, &running); err != nil {
		return nil, err
	}

	var schema []schedule.ActionStep
	if err := json.Unmarshal(schemaRaw, &schema); err != nil {
		return nil, fmt.Errorf("unmarshaling schema: %w", err)
	}

	return schedule.Reconstruct(id.Bytes, courseID.Bytes, name, cronExpr, schema, instanceFilter, running)
}
