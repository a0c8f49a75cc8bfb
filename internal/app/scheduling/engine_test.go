package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/app/dispatch"
	"github.com/opencampus/campusd/internal/domain/action"
	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/internal/domain/schedule"
	"github.com/opencampus/campusd/internal/infra/storage"
	entityMemory "github.com/opencampus/campusd/internal/infra/storage/entity/memory"
	journalMemory "github.com/opencampus/campusd/internal/infra/storage/journal/memory"
	scheduleMemory "github.com/opencampus/campusd/internal/infra/storage/schedule/memory"
	"github.com/opencampus/campusd/pkg/common/logger"
)

type engineHarness struct {
	entities   *entityMemory.EntityStore
	history    *entityMemory.HistoryStore
	logs       *journalMemory.LogStore
	content    *journalMemory.ContentStore
	schedules  *scheduleMemory.ScheduleStore
	dispatcher *dispatch.Dispatcher
	engine     *Engine
	courseID   uuid.UUID
}

func newEngineHarness(t *testing.T, registry *action.Registry) *engineHarness {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	tracer := storage.NoOpTracer()

	entities := entityMemory.NewEntityStore()
	history := entityMemory.NewHistoryStore()
	logs := journalMemory.NewLogStore()
	content := journalMemory.NewContentStore()
	schedules := scheduleMemory.NewScheduleStore()

	dispatcher := dispatch.NewDispatcher(
		entities,
		dispatch.NewLockManager(entities, log),
		dispatch.NewHistoryRecorder(history),
		logs,
		content,
		registry,
		log,
		tracer,
	)
	engine := NewEngine(schedules, entities, dispatcher, logs, content, log, tracer)

	course := entity.NewEntity(uuid.New(), entity.KindCourse, "devops", "devops-2026")
	require.NoError(t, entities.Create(context.Background(), course))

	return &engineHarness{
		entities:   entities,
		history:    history,
		logs:       logs,
		content:    content,
		schedules:  schedules,
		dispatcher: dispatcher,
		engine:     engine,
		courseID:   course.ID(),
	}
}

func (h *engineHarness) addInstance(t *testing.T, name, status string) *entity.Entity {
	t.Helper()

	inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", name)
	inst.SetDefinition(h.courseID)
	inst.SetAttr("status", status)
	require.NoError(t, h.entities.Create(context.Background(), inst))
	return inst
}

func (h *engineHarness) addSchedule(t *testing.T, filter string, schema []schedule.ActionStep) *schedule.Schedule {
	t.Helper()

	s, err := schedule.New(uuid.New(), h.courseID, "assign-usernames", "* * * * *", schema, filter)
	require.NoError(t, err)
	require.NoError(t, h.schedules.Create(context.Background(), s))
	return s
}

func usernameSchema() []schedule.ActionStep {
	return []schedule.ActionStep{{Action: "assignUsername", Params: json.RawMessage(`{}`)}}
}

// TestEngineRunSchedule covers the full tick: three instances match the
// filter, the action succeeds on two and fails on one, the failure lands in
// the schedule's log and the run flag returns to idle.
func TestEngineRunSchedule(t *testing.T) {
	t.Parallel()

	registry := action.NewRegistry()
	registry.Register("devops", entity.KindCourseInstance, action.Func{
		ActionName: "assignUsername",
		Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
			if ec.Entity.Name() == "carol" {
				return nil, errors.New("no username available")
			}
			ec.Entity.SetAttr("status", "username_assigned")
			return json.RawMessage(`{}`), nil
		},
	})

	h := newEngineHarness(t, registry)
	alice := h.addInstance(t, "alice", "waiting_for_github_username")
	bob := h.addInstance(t, "bob", "waiting_for_github_username")
	carol := h.addInstance(t, "carol", "waiting_for_github_username")
	h.addInstance(t, "dan", "done")

	s := h.addSchedule(t, `status == "waiting_for_github_username"`, usernameSchema())

	ctx := context.Background()
	require.NoError(t, h.engine.RunSchedule(ctx, s.ID()))

	// Two successes, one failure, each with exactly one history event.
	for _, tc := range []struct {
		inst       *entity.Entity
		successful bool
	}{
		{alice, true},
		{bob, true},
		{carol, false},
	} {
		events, err := h.history.List(ctx, tc.inst.ID())
		require.NoError(t, err)
		require.Len(t, events, 1, "instance %s", tc.inst.Name())
		assert.Equal(t, tc.successful, events[0].Successful(), "instance %s", tc.inst.Name())
	}

	// The schedule's own log records the failure and the summary.
	runLogs, err := h.logs.ListByCourse(ctx, h.courseID, time.Now().UTC())
	require.NoError(t, err)

	var scheduleLog *journal.Log
	for _, l := range runLogs {
		if l.Type() == journal.LogTypeSchedule {
			scheduleLog = l
			break
		}
	}
	require.NotNil(t, scheduleLog, "tick must create a SCHEDULE log")

	content, err := h.content.ReadFrom(ctx, scheduleLog.ID(), 0)
	require.NoError(t, err)
	assert.Contains(t, string(content), "matched 3 of 4 instances")
	assert.Contains(t, string(content), "carol")
	assert.Contains(t, string(content), "run complete: 1 failures")

	// The guard is back down, so the next tick proceeds.
	require.NoError(t, h.engine.RunSchedule(ctx, s.ID()))
	events, err := h.history.List(ctx, alice.ID())
	require.NoError(t, err)
	assert.Len(t, events, 1, "alice no longer matches after her status changed")
}

func TestEngineRunScheduleSkipsWhileRunning(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t, action.NewRegistry())
	h.addInstance(t, "alice", "waiting_for_github_username")
	s := h.addSchedule(t, `true`, usernameSchema())

	ctx := context.Background()
	acquired, err := h.schedules.TryMarkRunning(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, acquired)

	// Overlapping tick: skipped without creating a log.
	require.NoError(t, h.engine.RunSchedule(ctx, s.ID()))

	logs, err := h.logs.ListByCourse(ctx, h.courseID, time.Now().UTC())
	require.NoError(t, err)
	assert.Empty(t, logs, "a skipped tick must not create a log")

	// Still marked running: the skipped tick must not clear someone
	// else's guard.
	acquired, err = h.schedules.TryMarkRunning(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, acquired)
}

func TestEngineStartClearsAbandonedRunningFlags(t *testing.T) {
	t.Parallel()

	registry := action.NewRegistry()
	registry.Register("devops", entity.KindCourseInstance, action.Func{
		ActionName: "assignUsername",
		Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	})

	h := newEngineHarness(t, registry)
	h.addInstance(t, "alice", "waiting_for_github_username")
	s := h.addSchedule(t, `true`, usernameSchema())

	ctx := context.Background()

	// A crash mid-run leaves the guard set in the store.
	acquired, err := h.schedules.TryMarkRunning(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, acquired)

	require.NoError(t, h.engine.Start(ctx))
	defer h.engine.Stop()

	// The restarted engine runs the schedule instead of skipping forever.
	require.NoError(t, h.engine.RunSchedule(ctx, s.ID()))

	logs, err := h.logs.ListByCourse(ctx, h.courseID, time.Now().UTC())
	require.NoError(t, err)

	var scheduleLogs []*journal.Log
	for _, l := range logs {
		if l.Type() == journal.LogTypeSchedule {
			scheduleLogs = append(scheduleLogs, l)
		}
	}
	require.Len(t, scheduleLogs, 1, "the tick after recovery must produce a run log")
}

// ctxAwareSchedules fails any call whose context is already cancelled, the
// way a database-backed schedule repository does.
type ctxAwareSchedules struct {
	inner schedule.Repository
}

func (s *ctxAwareSchedules) Create(ctx context.Context, sc *schedule.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Create(ctx, sc)
}

func (s *ctxAwareSchedules) GetByID(ctx context.Context, id uuid.UUID) (*schedule.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.GetByID(ctx, id)
}

func (s *ctxAwareSchedules) Update(ctx context.Context, sc *schedule.Schedule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Update(ctx, sc)
}

func (s *ctxAwareSchedules) Delete(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.Delete(ctx, id)
}

func (s *ctxAwareSchedules) List(ctx context.Context) ([]*schedule.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.inner.List(ctx)
}

func (s *ctxAwareSchedules) TryMarkRunning(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.inner.TryMarkRunning(ctx, id)
}

func (s *ctxAwareSchedules) ClearRunning(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.inner.ClearRunning(ctx, id)
}

func (s *ctxAwareSchedules) ClearAllRunning(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.inner.ClearAllRunning(ctx)
}

func TestEngineRunScheduleClearsGuardAfterBaseContextCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := action.NewRegistry()
	registry.Register("devops", entity.KindCourseInstance, action.Func{
		ActionName: "assignUsername",
		Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
			// Shutdown cancels the base context while the run is in flight.
			cancel()
			return json.RawMessage(`{}`), nil
		},
	})

	h := newEngineHarness(t, registry)
	h.addInstance(t, "alice", "waiting_for_github_username")
	s := h.addSchedule(t, `true`, usernameSchema())

	store := &ctxAwareSchedules{inner: h.schedules}
	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	engine := NewEngine(store, h.entities, h.dispatcher, h.logs, h.content, log, storage.NoOpTracer())

	_ = engine.RunSchedule(ctx, s.ID())

	// The guard must come back down even though the run's context died.
	acquired, err := h.schedules.TryMarkRunning(context.Background(), s.ID())
	require.NoError(t, err)
	assert.True(t, acquired, "the running flag must be cleared on the cancelled path")
}

func TestEngineUpsertBeforeStart(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t, action.NewRegistry())
	require.NotNil(t, h.engine.baseCtx, "a timer registered before Start must not tick with a nil context")

	admin := NewAdmin(h.schedules, h.engine)
	_, err := admin.Create(context.Background(), h.courseID, "early", "*/5 * * * *", usernameSchema(), `true`)
	require.NoError(t, err)

	require.NoError(t, h.engine.Start(context.Background()))
	defer h.engine.Stop()

	assert.Len(t, h.engine.cron.Entries(), 1, "one timer per schedule, not one per registration")
}

func TestEngineRunScheduleSkipsBlockedInstances(t *testing.T) {
	t.Parallel()

	registry := action.NewRegistry()
	registry.Register("devops", entity.KindCourseInstance, action.Func{
		ActionName: "assignUsername",
		Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
			return json.RawMessage(`{}`), nil
		},
	})

	h := newEngineHarness(t, registry)
	blocked := h.addInstance(t, "alice", "waiting_for_github_username")
	blocked.SetBlocked(true)
	require.NoError(t, h.entities.Update(context.Background(), blocked))

	s := h.addSchedule(t, `status == "waiting_for_github_username"`, usernameSchema())

	ctx := context.Background()
	require.NoError(t, h.engine.RunSchedule(ctx, s.ID()))

	events, err := h.history.List(ctx, blocked.ID())
	require.NoError(t, err)
	assert.Empty(t, events, "blocked instances are never dispatched against")
}

func TestEngineRunScheduleChainsActionsInOrder(t *testing.T) {
	t.Parallel()

	var calls []string
	registry := action.NewRegistry()
	for _, name := range []string{"first", "second"} {
		name := name
		registry.Register("devops", entity.KindCourseInstance, action.Func{
			ActionName: name,
			Fn: func(ctx context.Context, ec *action.ExecContext) (json.RawMessage, error) {
				calls = append(calls, name)
				return nil, nil
			},
		})
	}

	h := newEngineHarness(t, registry)
	h.addInstance(t, "alice", "ready")
	s := h.addSchedule(t, `true`, []schedule.ActionStep{{Action: "first"}, {Action: "second"}})

	require.NoError(t, h.engine.RunSchedule(context.Background(), s.ID()))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestEngineRunScheduleUnknownSchedule(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t, action.NewRegistry())

	err := h.engine.RunSchedule(context.Background(), uuid.New())
	require.ErrorIs(t, err, schedule.ErrNotFound)
}

func TestAdminCreateValidatesBeforePersisting(t *testing.T) {
	t.Parallel()

	h := newEngineHarness(t, action.NewRegistry())
	require.NoError(t, h.engine.Start(context.Background()))
	defer h.engine.Stop()

	admin := NewAdmin(h.schedules, h.engine)

	_, err := admin.Create(context.Background(), h.courseID, "bad", "not cron", usernameSchema(), `true`)
	require.ErrorIs(t, err, schedule.ErrInvalid)

	stored, err := h.schedules.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)

	created, err := admin.Create(context.Background(), h.courseID, "good", "*/5 * * * *", usernameSchema(), `true`)
	require.NoError(t, err)

	stored, err = h.schedules.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, created.ID(), stored[0].ID())

	require.NoError(t, admin.Delete(context.Background(), created.ID()))
	stored, err = h.schedules.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, stored)
}
