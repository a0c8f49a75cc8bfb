// Package scheduling runs cron-triggered schedules: each tick selects course
// instances by filter and dispatches the schedule's action chain against them.
package scheduling

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opencampus/campusd/internal/app/dispatch"
	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/internal/domain/schedule"
	"github.com/opencampus/campusd/pkg/common/logger"
)

// Engine owns one cron timer per schedule. A tick that fires while the
// previous run is still in flight is skipped, not queued: entry to a run is
// guarded by the store's conditional update on the running flag, the same
// compare-and-set discipline the entity lock uses.
type Engine struct {
	schedules  schedule.Repository
	entities   entity.Repository
	dispatcher *dispatch.Dispatcher
	logs       journal.MetadataRepository
	content    journal.ContentStore
	logger     *logger.Logger
	tracer     trace.Tracer

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[uuid.UUID]cron.EntryID
	baseCtx context.Context
}

// NewEngine creates a schedule engine. Start must be called before any
// timer fires.
func NewEngine(
	schedules schedule.Repository,
	entities entity.Repository,
	dispatcher *dispatch.Dispatcher,
	logs journal.MetadataRepository,
	content journal.ContentStore,
	log *logger.Logger,
	tracer trace.Tracer,
) *Engine {
	return &Engine{
		schedules:  schedules,
		entities:   entities,
		dispatcher: dispatcher,
		logs:       logs,
		content:    content,
		logger:     log,
		tracer:     tracer,
		cron:       cron.New(),
		entries:    make(map[uuid.UUID]cron.EntryID),
		baseCtx:    context.Background(),
	}
}

// Start loads all stored schedules, registers their timers and starts the
// cron runner. ctx outlives Start and is the base context for every tick.
func (e *Engine) Start(ctx context.Context) error {
	e.baseCtx = ctx

	// A crash mid-run leaves running set, and an abandoned guard must not
	// permanently skip the schedule's ticks.
	cleared, err := e.schedules.ClearAllRunning(ctx)
	if err != nil {
		return fmt.Errorf("recovering schedule running flags: %w", err)
	}
	if cleared > 0 {
		e.logger.Warn(ctx, "cleared abandoned schedule running flags", "count", cleared)
	}

	stored, err := e.schedules.List(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}

	// Upsert, not register: a schedule created before Start already has a
	// timer, and it must not get a second one.
	for _, s := range stored {
		if err := e.Upsert(s); err != nil {
			return err
		}
	}

	e.cron.Start()
	e.logger.Info(ctx, "schedule engine started", "schedules", len(stored))
	return nil
}

// Stop halts the cron runner and waits for in-flight runs to finish.
func (e *Engine) Stop() {
	<-e.cron.Stop().Done()
}

// Upsert registers or replaces the timer for a schedule. Called by the
// administration surface after a create or update.
func (e *Engine) Upsert(s *schedule.Schedule) error {
	e.Remove(s.ID())
	return e.register(s)
}

// Remove drops the timer for a schedule if one is registered.
func (e *Engine) Remove(id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if entryID, exists := e.entries[id]; exists {
		e.cron.Remove(entryID)
		delete(e.entries, id)
	}
}

func (e *Engine) register(s *schedule.Schedule) error {
	scheduleID := s.ID()
	entryID, err := e.cron.AddFunc(s.CronExpr(), func() {
		if err := e.RunSchedule(e.baseCtx, scheduleID); err != nil {
			e.logger.Error(e.baseCtx, "schedule run failed", "schedule_id", scheduleID, "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("registering schedule %s: %w", scheduleID, err)
	}

	e.mu.Lock()
	e.entries[scheduleID] = entryID
	e.mu.Unlock()
	return nil
}

// RunSchedule performs one tick of a schedule: take the re-entrancy guard,
// create the run log, select matching instances and dispatch every schema
// step against each of them. A per-instance failure never aborts the run;
// it is written to the schedule's log and the remaining instances proceed.
func (e *Engine) RunSchedule(ctx context.Context, scheduleID uuid.UUID) (err error) {
	ctx, span := e.tracer.Start(ctx, "scheduling.run",
		trace.WithAttributes(attribute.String("schedule_id", scheduleID.String())),
	)
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	acquired, err := e.schedules.TryMarkRunning(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("marking schedule running: %w", err)
	}
	if !acquired {
		// Previous tick still in flight; skip without creating a log.
		span.SetAttributes(attribute.Bool("skipped", true))
		e.logger.Info(ctx, "schedule tick skipped, previous run in flight", "schedule_id", scheduleID)
		return nil
	}
	// The guard must be cleared even when the base context is already
	// cancelled at shutdown, or every later tick of this schedule skips.
	clearCtx := context.WithoutCancel(ctx)
	defer func() {
		if clearErr := e.schedules.ClearRunning(clearCtx, scheduleID); clearErr != nil {
			e.logger.Error(clearCtx, "clearing schedule running flag", "schedule_id", scheduleID, "err", clearErr)
		}
	}()

	s, err := e.schedules.GetByID(ctx, scheduleID)
	if err != nil {
		return fmt.Errorf("loading schedule: %w", err)
	}

	logID := uuid.New()
	runLog := journal.NewLog(logID, s.CourseID(), journal.LogTypeSchedule, s.Name())
	if err := e.logs.Create(ctx, runLog); err != nil {
		return fmt.Errorf("creating schedule log: %w", err)
	}
	if err := e.content.Create(ctx, logID); err != nil {
		return fmt.Errorf("creating schedule log content: %w", err)
	}

	out := func(format string, args ...any) {
		line := fmt.Sprintf(format+"\n", args...)
		if appendErr := e.content.Append(ctx, logID, []byte(line)); appendErr != nil {
			e.logger.Error(ctx, "appending schedule log", "log_id", logID, "err", appendErr)
		}
	}

	instances, err := e.entities.ListCourseInstances(ctx, s.CourseID())
	if err != nil {
		out("error listing course instances: %v", err)
		return fmt.Errorf("listing course instances: %w", err)
	}

	var matched []*entity.Entity
	for _, inst := range instances {
		ok, matchErr := s.Filter().Matches(inst)
		if matchErr != nil {
			out("filter error on instance %s: %v", inst.ID(), matchErr)
			continue
		}
		if !ok {
			continue
		}
		if inst.Blocked() {
			out("instance %s (%s) is blocked, skipping", inst.ID(), inst.Name())
			continue
		}
		matched = append(matched, inst)
	}
	out("schedule %q matched %d of %d instances", s.Name(), len(matched), len(instances))

	var failures int
	for _, step := range s.Schema() {
		for _, inst := range matched {
			if _, invokeErr := e.dispatcher.Invoke(ctx, inst.ID(), step.Action, step.Params, "schedule:"+s.Name()); invokeErr != nil {
				failures++
				out("action %q on instance %s (%s) failed: %v", step.Action, inst.ID(), inst.Name(), invokeErr)
				continue
			}
			out("action %q on instance %s (%s) succeeded", step.Action, inst.ID(), inst.Name())
		}
	}

	out("run complete: %d failures", failures)
	span.SetAttributes(
		attribute.Int("matched", len(matched)),
		attribute.Int("failures", failures),
	)
	return nil
}
