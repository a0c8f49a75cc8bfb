package fs

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/domain/journal"
)

func TestContentStoreAppendAndReadFrom(t *testing.T) {
	t.Parallel()

	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	logID := uuid.New()

	require.NoError(t, store.Create(ctx, logID))

	// Created content is empty, not missing.
	data, err := store.ReadFrom(ctx, logID, 0)
	require.NoError(t, err)
	assert.Empty(t, data)

	size, err := store.Size(ctx, logID)
	require.NoError(t, err)
	assert.Zero(t, size)

	require.NoError(t, store.Append(ctx, logID, []byte("line one\n")))
	require.NoError(t, store.Append(ctx, logID, []byte("line two\n")))

	data, err = store.ReadFrom(ctx, logID, 0)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two\n", string(data))

	// Resumable: a reader holding an offset sees only what follows it.
	data, err = store.ReadFrom(ctx, logID, int64(len("line one\n")))
	require.NoError(t, err)
	assert.Equal(t, "line two\n", string(data))

	size, err = store.Size(ctx, logID)
	require.NoError(t, err)
	assert.Equal(t, int64(len("line one\nline two\n")), size)
}

func TestContentStoreMissingContent(t *testing.T) {
	t.Parallel()

	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()

	_, err = store.ReadFrom(ctx, uuid.New(), 0)
	require.ErrorIs(t, err, journal.ErrContentNotFound)

	_, err = store.Size(ctx, uuid.New())
	require.ErrorIs(t, err, journal.ErrContentNotFound)
}

func TestContentStoreReadPastEnd(t *testing.T) {
	t.Parallel()

	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	logID := uuid.New()
	require.NoError(t, store.Create(ctx, logID))
	require.NoError(t, store.Append(ctx, logID, []byte("short")))

	data, err := store.ReadFrom(ctx, logID, 100)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestContentStoreIsolatesLogs(t *testing.T) {
	t.Parallel()

	store, err := NewContentStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	first, second := uuid.New(), uuid.New()
	require.NoError(t, store.Create(ctx, first))
	require.NoError(t, store.Create(ctx, second))

	require.NoError(t, store.Append(ctx, first, []byte("first log")))
	require.NoError(t, store.Append(ctx, second, []byte("second log")))

	data, err := store.ReadFrom(ctx, first, 0)
	require.NoError(t, err)
	assert.Equal(t, "first log", string(data))

	data, err = store.ReadFrom(ctx, second, 0)
	require.NoError(t, err)
	assert.Equal(t, "second log", string(data))
}
