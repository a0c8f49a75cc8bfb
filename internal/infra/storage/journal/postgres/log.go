// Package postgres provides PostgreSQL-backed storage for log metadata.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/internal/infra/storage"
)

var _ journal.MetadataRepository = (*logStore)(nil)

type logStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewLogStore creates a new PostgreSQL-backed log metadata repository.
func NewLogStore(pool *pgxpool.Pool, tracer trace.Tracer) *logStore {
	return &logStore{db: pool, tracer: tracer}
}

var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

func (r *logStore) Create(ctx context.Context, l *journal.Log) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("log_id", l.ID().String()),
		attribute.String("log_type", string(l.Type())),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_log", dbAttrs, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, `
			INSERT INTO logs (id, course_id, log_type, name, ts)
			VALUES ($1, $2, $3, $4, $5)`,
			pgtype.UUID{Bytes: l.ID(), Valid: true},
			pgtype.UUID{Bytes: l.CourseID(), Valid: true},
			string(l.Type()),
			l.Name(),
			pgtype.Timestamptz{Time: l.Timestamp(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("insert log error: %w", err)
		}
		return nil
	})
}

func (r *logStore) GetByID(ctx context.Context, id uuid.UUID) (*journal.Log, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("log_id", id.String()),
	)

	var l *journal.Log
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_log", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, course_id, log_type, name, ts FROM logs WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)

		var err error
		l, err = scanLog(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return journal.ErrLogNotFound
			}
			return fmt.Errorf("get log query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return l, nil
}

func (r *logStore) ListByCourse(ctx context.Context, courseID uuid.UUID, now time.Time) ([]*journal.Log, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("course_id", courseID.String()),
	)

	var out []*journal.Log
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_logs", dbAttrs, func(ctx context.Context) error {
		cutoff := now.Add(-journal.RetentionWindow)
		rows, err := r.db.Query(ctx, `
			SELECT id, course_id, log_type, name, ts
			FROM logs WHERE course_id = $1 AND ts >= $2
			ORDER BY ts DESC`,
			pgtype.UUID{Bytes: courseID, Valid: true},
			pgtype.Timestamptz{Time: cutoff, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("list logs query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			l, err := scanLog(rows)
			if err != nil {
				return fmt.Errorf("scanning log: %w", err)
			}
			out = append(out, l)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func scanLog(row pgx.Row) (*journal.Log, error) {
	var (
		id, courseID pgtype.UUID
		logTypeStr   string
		name         string
		ts           pgtype.Timestamptz
	)
	if err := row.Scan(&id, &courseID, &logTypeStr, &name, &ts); err != nil {
		return nil, err
	}

	logType, err := journal.ParseLogType(logTypeStr)
	if err != nil {
		return nil, fmt.Errorf("stored log type %q: %w", logTypeStr, err)
	}

	return journal.ReconstructLog(id.Bytes, courseID.Bytes, logType, name, ts.Time), nil
}
