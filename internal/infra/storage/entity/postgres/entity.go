// Package postgres provides PostgreSQL-backed storage for entity records,
// their locks and their history.
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

	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/infra/storage"
)

// entityStore implements entity.Repository using PostgreSQL as the backing
// store. Free-form instance attributes are kept as JSONB so course plugins
// can record arbitrary progress fields without schema changes.
var _ entity.Repository = (*entityStore)(nil)

type entityStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewEntityStore creates a new PostgreSQL-backed entity repository.
func NewEntityStore(pool *pgxpool.Pool, tracer trace.Tracer) *entityStore {
	return &entityStore{db: pool, tracer: tracer}
}

// defaultDBAttributes defines standard OpenTelemetry attributes for database operations.
var defaultDBAttributes = []attribute.KeyValue{
	attribute.String("db.system", "postgresql"),
}

func (r *entityStore) Create(ctx context.Context, e *entity.Entity) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", e.ID().String()),
		attribute.String("kind", e.Kind().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.create_entity", dbAttrs, func(ctx context.Context) error {
		attrs, err := json.Marshal(e.Attrs())
		if err != nil {
			return fmt.Errorf("marshaling attrs: %w", err)
		}

		_, err = r.db.Exec(ctx, `
			INSERT INTO entities (
				id, kind, course_type, name, parent_id, definition_id,
				phase_instance_ids, locked, blocked, attrs, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			pgtype.UUID{Bytes: e.ID(), Valid: true},
			e.Kind().String(),
			e.CourseType(),
			e.Name(),
			nullableUUID(e.ParentID()),
			nullableUUID(e.DefinitionID()),
			uuidSlice(e.PhaseInstanceIDs()),
			e.Locked(),
			e.Blocked(),
			attrs,
			pgtype.Timestamptz{Time: e.CreatedAt(), Valid: true},
			pgtype.Timestamptz{Time: e.UpdatedAt(), Valid: true},
		)
		if err != nil {
			return fmt.Errorf("insert entity error: %w", err)
		}
		return nil
	})
}

func (r *entityStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", id.String()),
	)

	var e *entity.Entity
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.get_entity", dbAttrs, func(ctx context.Context) error {
		row := r.db.QueryRow(ctx, `
			SELECT id, kind, course_type, name, parent_id, definition_id,
			       phase_instance_ids, locked, blocked, attrs, created_at, updated_at
			FROM entities WHERE id = $1`,
			pgtype.UUID{Bytes: id, Valid: true},
		)

		var err error
		e, err = scanEntity(row)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return entity.ErrNotFound
			}
			return fmt.Errorf("get entity query error: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return e, nil
}

func (r *entityStore) Update(ctx context.Context, e *entity.Entity) error {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("entity_id", e.ID().String()),
	)

	return storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_entity", dbAttrs, func(ctx context.Context) error {
		attrs, err := json.Marshal(e.Attrs())
		if err != nil {
			return fmt.Errorf("marshaling attrs: %w", err)
		}

		// The locked column is deliberately absent: only the lock
		// repository's conditional update may flip it.
		tag, err := r.db.Exec(ctx, `
			UPDATE entities SET
				name = $2, parent_id = $3, definition_id = $4,
				phase_instance_ids = $5, blocked = $6, attrs = $7, updated_at = NOW()
			WHERE id = $1`,
			pgtype.UUID{Bytes: e.ID(), Valid: true},
			e.Name(),
			nullableUUID(e.ParentID()),
			nullableUUID(e.DefinitionID()),
			uuidSlice(e.PhaseInstanceIDs()),
			e.Blocked(),
			attrs,
		)
		if err != nil {
			return fmt.Errorf("update entity error: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return entity.ErrNotFound
		}
		return nil
	})
}

func (r *entityStore) ListCourseInstances(ctx context.Context, courseID uuid.UUID) ([]*entity.Entity, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("course_id", courseID.String()),
	)

	var out []*entity.Entity
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.list_course_instances", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT id, kind, course_type, name, parent_id, definition_id,
			       phase_instance_ids, locked, blocked, attrs, created_at, updated_at
			FROM entities WHERE kind = $1 AND definition_id = $2`,
			entity.KindCourseInstance.String(),
			pgtype.UUID{Bytes: courseID, Valid: true},
		)
		if err != nil {
			return fmt.Errorf("list course instances query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntity(rows)
			if err != nil {
				return fmt.Errorf("scanning course instance: %w", err)
			}
			out = append(out, e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

func scanEntity(row pgx.Row) (*entity.Entity, error) {
	var (
		id, parentID, definitionID pgtype.UUID
		kindStr, courseType, name  string
		phaseInstanceIDs           []pgtype.UUID
		locked, blocked            bool
		attrsRaw                   []byte
		createdAt, updatedAt       pgtype.Timestamptz
	)

	if err := row.Scan(
		&id, &kindStr, &courseType, &name, &parentID, &definitionID,
		&phaseInstanceIDs, &locked, &blocked, &attrsRaw, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	kind, err := entity.ParseKind(kindStr)
	if err != nil {
		return nil, fmt.Errorf("stored kind %q: %w", kindStr, err)
	}

	var attrs map[string]any
	if len(attrsRaw) > 0 {
		if err := json.Unmarshal(attrsRaw, &attrs); err != nil {
			return nil, fmt.Errorf("unmarshaling attrs: %w", err)
		}
	}

	phaseIDs := make([]uuid.UUID, 0, len(phaseInstanceIDs))
	for _, p := range phaseInstanceIDs {
		phaseIDs = append(phaseIDs, p.Bytes)
	}

	return entity.ReconstructEntity(
		id.Bytes,
		kind,
		courseType,
		name,
		uuidOrNil(parentID),
		uuidOrNil(definitionID),
		phaseIDs,
		locked,
		blocked,
		attrs,
		createdAt.Time,
		updatedAt.Time,
	), nil
}

func nullableUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: id != uuid.Nil}
}

func uuidOrNil(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}

func uuidSlice(ids []uuid.UUID) []pgtype.UUID {
	out := make([]pgtype.UUID, len(ids))
	for i, id := range ids {
		out[i] = pgtype.UUID{Bytes: id, Valid: true}
	}
	return out
}
