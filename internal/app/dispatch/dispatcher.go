// Package dispatch executes named actions against entities under the
// per-entity locking discipline, recording each outcome in history and in a
// per-action log.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/domain/action"
	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/pkg/common/logger"
)

// ErrActionFailed indicates the action body raised during execution. The
// failure is recorded in history before this error surfaces, and the entity
// is left in whatever state the partially-executed action produced: actions
// may have external side effects that cannot be undone.
var ErrActionFailed = errors.New("action failed")

// maxParentDepth bounds the walk from an entity up to its course.
const maxParentDepth = 8

// Result is the outcome of one action invocation.
type Result struct {
	Success bool
	Data    json.RawMessage
	LogID   uuid.UUID
}

// Dispatcher resolves and runs actions. Exactly one state-changing action
// runs against a given entity at a time; concurrency across entities is
// unbounded here.
type Dispatcher struct {
	entities entity.Repository
	locks    *LockManager
	recorder *HistoryRecorder
	logs     journal.MetadataRepository
	content  journal.ContentStore
	registry *action.Registry
	logger   *logger.Logger
	tracer   trace.Tracer
}

// NewDispatcher creates a dispatcher with all its collaborators.
func NewDispatcher(
	entities entity.Repository,
	locks *LockManager,
	recorder *HistoryRecorder,
	logs journal.MetadataRepository,
	content journal.ContentStore,
	registry *action.Registry,
	log *logger.Logger,
	tracer trace.Tracer,
) *Dispatcher {
	return &Dispatcher{
		entities: entities,
		locks:    locks,
		recorder: recorder,
		logs:     logs,
		content:  content,
		registry: registry,
		logger:   log,
		tracer:   tracer,
	}
}

// Invoke runs the named action against the entity:
//
//  1. resolve the implementation bound to the entity's type
//  2. acquire the entity lock (no retry on ErrLocked; callers may re-submit)
//  3. create the log record before the body runs, so a log exists even if
//     the body fails immediately
//  4. execute the body, which may mutate the entity and append to the log
//  5. append exactly one history event recording the outcome
//  6. release the lock on every exit path
//
// Resolution failures and ErrLocked surface before any mutation.
func (d *Dispatcher) Invoke(ctx context.Context, entityID uuid.UUID, actionName string, params json.RawMessage, caller string) (result *Result, err error) {
	ctx, span := d.tracer.Start(ctx, "dispatch.invoke",
		trace.WithAttributes(
			attribute.String("entity_id", entityID.String()),
			attribute.String("action", actionName),
		),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	e, err := d.entities.GetByID(ctx, entityID)
	if err != nil {
		return nil, err
	}

	act, err := d.registry.Resolve(e.CourseType(), e.Kind(), actionName)
	if err != nil {
		return nil, fmt.Errorf("resolving %q for %s/%s: %w", actionName, e.CourseType(), e.Kind(), err)
	}

	lock, err := d.locks.Acquire(ctx, entityID)
	if err != nil {
		return nil, err
	}
	// The release must reach the store even when the caller has already
	// cancelled, or the entity stays locked until the next restart.
	cleanupCtx := context.WithoutCancel(ctx)
	defer lock.Release(cleanupCtx)

	courseID, err := d.resolveCourseID(ctx, e)
	if err != nil {
		return nil, err
	}

	logID := uuid.New()
	logName := fmt.Sprintf("%s/%s/%s", e.CourseType(), e.Name(), actionName)
	if err := d.logs.Create(ctx, journal.NewLog(logID, courseID, journal.LogTypeAction, logName)); err != nil {
		return nil, fmt.Errorf("creating log record: %w", err)
	}
	if err := d.content.Create(ctx, logID); err != nil {
		return nil, fmt.Errorf("creating log content: %w", err)
	}

	data, execErr := d.execute(ctx, act, &action.ExecContext{
		Entity: e,
		Params: params,
		Caller: caller,
		Log:    newContentWriter(ctx, d.content, logID, d.logger),
	})

	if execErr != nil {
		// Partial mutations are kept. The body may have caused external
		// side effects whose tracking state lives on the entity.
		if upErr := d.entities.Update(cleanupCtx, e); upErr != nil {
			d.logger.Error(ctx, "persisting entity after failed action", "entity_id", entityID, "err", upErr)
		}
		summary, _ := json.Marshal(map[string]string{"error": execErr.Error()})
		event := entity.NewHistoryEvent(actionName, false, logID, summary)
		if recErr := d.recorder.Record(cleanupCtx, entityID, event); recErr != nil {
			d.logger.Error(ctx, "recording failed-action history", "entity_id", entityID, "err", recErr)
		}
		return &Result{Success: false, LogID: logID}, fmt.Errorf("%w: %v", ErrActionFailed, execErr)
	}

	if err := d.entities.Update(ctx, e); err != nil {
		return nil, fmt.Errorf("persisting entity after action: %w", err)
	}

	event := entity.NewHistoryEvent(actionName, true, logID, data)
	if err := d.recorder.Record(ctx, entityID, event); err != nil {
		return nil, err
	}

	return &Result{Success: true, Data: data, LogID: logID}, nil
}

// History returns the entity's audit trail.
func (d *Dispatcher) History(ctx context.Context, entityID uuid.UUID) ([]entity.HistoryEvent, error) {
	if _, err := d.entities.GetByID(ctx, entityID); err != nil {
		return nil, err
	}
	return d.recorder.List(ctx, entityID)
}

// execute runs the action body, converting panics into errors so a
// misbehaving action cannot take down the process or leak the lock.
func (d *Dispatcher) execute(ctx context.Context, act action.Action, ec *action.ExecContext) (data json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return act.Execute(ctx, ec)
}

// resolveCourseID walks parent and definition references up to the course
// definition the entity ultimately belongs to.
func (d *Dispatcher) resolveCourseID(ctx context.Context, e *entity.Entity) (uuid.UUID, error) {
	cur := e
	for depth := 0; depth < maxParentDepth; depth++ {
		if cur.Kind() == entity.KindCourse {
			return cur.ID(), nil
		}

		next := cur.ParentID()
		if cur.Kind() == entity.KindCourseInstance {
			next = cur.DefinitionID()
		}
		if next == uuid.Nil {
			return uuid.Nil, fmt.Errorf("entity %s has no path to a course", e.ID())
		}

		parent, err := d.entities.GetByID(ctx, next)
		if err != nil {
			return uuid.Nil, fmt.Errorf("resolving course for %s: %w", e.ID(), err)
		}
		cur = parent
	}
	return uuid.Nil, fmt.Errorf("entity %s exceeds max hierarchy depth", e.ID())
}
