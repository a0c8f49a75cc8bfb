package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/domain/journal"
)

func TestLogStoreListByCourseAppliesRetentionWindow(t *testing.T) {
	t.Parallel()

	store := NewLogStore()
	ctx := context.Background()
	courseID := uuid.New()
	now := time.Now().UTC()

	recent := journal.ReconstructLog(uuid.New(), courseID, journal.LogTypeAction, "recent", now.Add(-time.Hour))
	old := journal.ReconstructLog(uuid.New(), courseID, journal.LogTypeSchedule, "old", now.Add(-journal.RetentionWindow-time.Hour))
	otherCourse := journal.ReconstructLog(uuid.New(), uuid.New(), journal.LogTypeAction, "other", now)

	for _, l := range []*journal.Log{recent, old, otherCourse} {
		require.NoError(t, store.Create(ctx, l))
	}

	listed, err := store.ListByCourse(ctx, courseID, now)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, recent.ID(), listed[0].ID())

	// Aged-out metadata is still fetchable by id.
	got, err := store.GetByID(ctx, old.ID())
	require.NoError(t, err)
	assert.Equal(t, "old", got.Name())

	_, err = store.GetByID(ctx, uuid.New())
	require.ErrorIs(t, err, journal.ErrLogNotFound)
}

func TestContentStoreReadFromOffsets(t *testing.T) {
	t.Parallel()

	store := NewContentStore()
	ctx := context.Background()
	logID := uuid.New()

	_, err := store.ReadFrom(ctx, logID, 0)
	require.ErrorIs(t, err, journal.ErrContentNotFound)

	require.NoError(t, store.Create(ctx, logID))
	require.NoError(t, store.Append(ctx, logID, []byte("hello ")))
	require.NoError(t, store.Append(ctx, logID, []byte("world")))

	data, err := store.ReadFrom(ctx, logID, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	data, err = store.ReadFrom(ctx, logID, 6)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	data, err = store.ReadFrom(ctx, logID, 50)
	require.NoError(t, err)
	assert.Empty(t, data)

	size, err := store.Size(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), size)
}
