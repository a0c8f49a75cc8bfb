package postgres

import (
	"context"
	"encoding/json"
	"testing"

	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/domain/entity"
	"github.com/opencampus/campusd/internal/infra/storage"
)

func TestEntityStoreRoundTrip(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEntityStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	course := entity.NewEntity(uuid.New(), entity.KindCourse, "devops", "devops-2026")
	require.NoError(t, store.Create(ctx, course))

	inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "alice")
	inst.SetDefinition(course.ID())
	inst.SetAttr("status", "waiting_for_github_username")
	require.NoError(t, store.Create(ctx, inst))

	loaded, err := store.GetByID(ctx, inst.ID())
	require.NoError(t, err)
	assert.Equal(t, inst.ID(), loaded.ID())
	assert.Equal(t, entity.KindCourseInstance, loaded.Kind())
	assert.Equal(t, "devops", loaded.CourseType())
	assert.Equal(t, "alice", loaded.Name())
	assert.Equal(t, course.ID(), loaded.DefinitionID())
	assert.False(t, loaded.Locked())
	assert.False(t, loaded.Blocked())

	v, ok := loaded.Attr("status")
	require.True(t, ok)
	assert.Equal(t, "waiting_for_github_username", v)

	_, err = store.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, entity.ErrNotFound)
}

func TestEntityStoreUpdate(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEntityStore(pool, storage.NoOpTracer())
	locks := NewLockStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "bob")
	require.NoError(t, store.Create(ctx, inst))

	// The locked column is owned by the lock store; an entity update must
	// not clear a concurrently-held lock.
	require.NoError(t, locks.AcquireLock(ctx, inst.ID()))

	inst.SetAttr("username", "bob-gh")
	inst.SetBlocked(true)
	require.NoError(t, store.Update(ctx, inst))

	loaded, err := store.GetByID(ctx, inst.ID())
	require.NoError(t, err)
	assert.True(t, loaded.Locked())
	assert.True(t, loaded.Blocked())

	v, ok := loaded.Attr("username")
	require.True(t, ok)
	assert.Equal(t, "bob-gh", v)

	missing := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "ghost")
	require.ErrorIs(t, store.Update(ctx, missing), entity.ErrNotFound)
}

func TestEntityStoreListCourseInstances(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEntityStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	course := entity.NewEntity(uuid.New(), entity.KindCourse, "devops", "devops-2026")
	require.NoError(t, store.Create(ctx, course))

	for _, name := range []string{"alice", "bob"} {
		inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", name)
		inst.SetDefinition(course.ID())
		require.NoError(t, store.Create(ctx, inst))
	}

	stranger := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "stranger")
	stranger.SetDefinition(uuid.New())
	require.NoError(t, store.Create(ctx, stranger))

	instances, err := store.ListCourseInstances(ctx, course.ID())
	require.NoError(t, err)
	require.Len(t, instances, 2)
	for _, inst := range instances {
		assert.Equal(t, course.ID(), inst.DefinitionID())
	}
}

func TestLockStoreCompareAndSet(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEntityStore(pool, storage.NoOpTracer())
	locks := NewLockStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "carol")
	require.NoError(t, store.Create(ctx, inst))

	require.NoError(t, locks.AcquireLock(ctx, inst.ID()))
	require.ErrorIs(t, locks.AcquireLock(ctx, inst.ID()), entity.ErrLocked)
	require.ErrorIs(t, locks.AcquireLock(ctx, uuid.New()), entity.ErrNotFound)

	require.NoError(t, locks.ReleaseLock(ctx, inst.ID()))
	require.NoError(t, locks.AcquireLock(ctx, inst.ID()))

	released, err := locks.ReleaseAllLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	loaded, err := store.GetByID(ctx, inst.ID())
	require.NoError(t, err)
	assert.False(t, loaded.Locked())
}

func TestHistoryStoreAppendOrder(t *testing.T) {
	t.Parallel()

	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	store := NewEntityStore(pool, storage.NoOpTracer())
	history := NewHistoryStore(pool, storage.NoOpTracer())
	ctx := context.Background()

	inst := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "dave")
	require.NoError(t, store.Create(ctx, inst))

	logID := uuid.New()
	events := []entity.HistoryEvent{
		entity.NewHistoryEvent("assignUsername", false, logID, json.RawMessage(`{"error":"rejected"}`)),
		entity.NewHistoryEvent("assignUsername", true, logID, json.RawMessage(`{"username":"dave-gh"}`)),
		entity.NewHistoryEvent("blocked", true, uuid.Nil, nil),
	}
	for _, ev := range events {
		require.NoError(t, history.Append(ctx, inst.ID(), ev))
	}

	listed, err := history.List(ctx, inst.ID())
	require.NoError(t, err)
	require.Len(t, listed, 3)

	assert.Equal(t, "assignUsername", listed[0].Event())
	assert.False(t, listed[0].Successful())
	assert.JSONEq(t, `{"error":"rejected"}`, string(listed[0].Data()))

	assert.True(t, listed[1].Successful())
	gotLogID, ok := listed[1].LogID()
	require.True(t, ok)
	assert.Equal(t, logID, gotLogID)

	_, ok = listed[2].LogID()
	assert.False(t, ok, "events without a log store no reference")
}
