package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/domain/entity"
)

func TestEntityStoreLockLifecycle(t *testing.T) {
	t.Parallel()

	store := NewEntityStore()
	ctx := context.Background()

	e := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "alice")
	require.NoError(t, store.Create(ctx, e))

	require.NoError(t, store.AcquireLock(ctx, e.ID()))
	require.ErrorIs(t, store.AcquireLock(ctx, e.ID()), entity.ErrLocked)

	require.NoError(t, store.ReleaseLock(ctx, e.ID()))
	require.NoError(t, store.AcquireLock(ctx, e.ID()))

	require.ErrorIs(t, store.AcquireLock(ctx, uuid.New()), entity.ErrNotFound)
}

func TestEntityStoreUpdateCannotFlipLock(t *testing.T) {
	t.Parallel()

	store := NewEntityStore()
	ctx := context.Background()

	e := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "alice")
	require.NoError(t, store.Create(ctx, e))
	require.NoError(t, store.AcquireLock(ctx, e.ID()))

	// An entity Update carries whatever lock state the caller loaded; the
	// stored flag must win.
	e.SetAttr("status", "ready")
	require.NoError(t, store.Update(ctx, e))

	stored, err := store.GetByID(ctx, e.ID())
	require.NoError(t, err)
	assert.True(t, stored.Locked())

	v, ok := stored.Attr("status")
	require.True(t, ok)
	assert.Equal(t, "ready", v)
}

func TestEntityStoreListCourseInstances(t *testing.T) {
	t.Parallel()

	store := NewEntityStore()
	ctx := context.Background()

	courseID := uuid.New()

	alice := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "alice")
	alice.SetDefinition(courseID)
	bob := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "bob")
	bob.SetDefinition(courseID)
	other := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "other")
	other.SetDefinition(uuid.New())
	task := entity.NewEntity(uuid.New(), entity.KindTaskInstance, "devops", "setup-repo")
	task.SetDefinition(courseID)

	for _, e := range []*entity.Entity{alice, bob, other, task} {
		require.NoError(t, store.Create(ctx, e))
	}

	instances, err := store.ListCourseInstances(ctx, courseID)
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "alice", instances[0].Name())
	assert.Equal(t, "bob", instances[1].Name())
}

func TestEntityStoreReleaseAllLocks(t *testing.T) {
	t.Parallel()

	store := NewEntityStore()
	ctx := context.Background()

	locked := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "alice")
	unlocked := entity.NewEntity(uuid.New(), entity.KindCourseInstance, "devops", "bob")
	require.NoError(t, store.Create(ctx, locked))
	require.NoError(t, store.Create(ctx, unlocked))
	require.NoError(t, store.AcquireLock(ctx, locked.ID()))

	released, err := store.ReleaseAllLocks(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	stored, err := store.GetByID(ctx, locked.ID())
	require.NoError(t, err)
	assert.False(t, stored.Locked())
}
