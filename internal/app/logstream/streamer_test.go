package logstream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencampus/campusd/internal/domain/journal"
	journalMemory "github.com/opencampus/campusd/internal/infra/storage/journal/memory"
	"github.com/opencampus/campusd/pkg/common/logger"
)

type streamHarness struct {
	logs    *journalMemory.LogStore
	content *journalMemory.ContentStore
	str     *Streamer
}

func newStreamHarness(t *testing.T) *streamHarness {
	t.Helper()

	log := logger.New(io.Discard, logger.LevelDebug, "test", nil)
	logs := journalMemory.NewLogStore()
	content := journalMemory.NewContentStore()

	return &streamHarness{
		logs:    logs,
		content: content,
		str:     NewStreamer(logs, content, log).WithPollInterval(5 * time.Millisecond),
	}
}

func (h *streamHarness) seedLog(t *testing.T, initial string) uuid.UUID {
	t.Helper()

	ctx := context.Background()
	logID := uuid.New()
	require.NoError(t, h.logs.Create(ctx, journal.NewLog(logID, uuid.New(), journal.LogTypeAction, "devops/alice/assignUsername")))
	require.NoError(t, h.content.Create(ctx, logID))
	if initial != "" {
		require.NoError(t, h.content.Append(ctx, logID, []byte(initial)))
	}
	return logID
}

// collectingSink accumulates streamed chunks and cancels the stream once an
// expected total has arrived.
type collectingSink struct {
	mu     sync.Mutex
	buf    []byte
	target int
	cancel context.CancelFunc
}

func (cs *collectingSink) sink(p []byte) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	cs.buf = append(cs.buf, p...)
	if len(cs.buf) >= cs.target {
		cs.cancel()
	}
	return nil
}

func (cs *collectingSink) String() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return string(cs.buf)
}

func TestStreamerReplaysFromOffset(t *testing.T) {
	t.Parallel()

	h := newStreamHarness(t)
	logID := h.seedLog(t, "line one\nline two\n")

	ctx, cancel := context.WithCancel(context.Background())
	cs := &collectingSink{target: len("line two\n"), cancel: cancel}

	err := h.str.Stream(ctx, logID, int64(len("line one\n")), cs.sink)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "line two\n", cs.String())
}

func TestStreamerTailsLiveGrowth(t *testing.T) {
	t.Parallel()

	h := newStreamHarness(t)
	logID := h.seedLog(t, "replayed\n")

	ctx, cancel := context.WithCancel(context.Background())
	want := "replayed\nappended later\n"
	cs := &collectingSink{target: len(want), cancel: cancel}

	done := make(chan error, 1)
	go func() {
		done <- h.str.Stream(ctx, logID, 0, cs.sink)
	}()

	// Let the replay land, then grow the content while the tail is live.
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.content.Append(context.Background(), logID, []byte("appended later\n")))

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		cancel()
		t.Fatal("stream did not deliver appended content in time")
	}
	assert.Equal(t, want, cs.String())
}

func TestStreamerUnknownLog(t *testing.T) {
	t.Parallel()

	h := newStreamHarness(t)

	err := h.str.Stream(context.Background(), uuid.New(), 0, func(p []byte) error { return nil })
	require.ErrorIs(t, err, journal.ErrLogNotFound)
}

func TestStreamerMissingContentIsDistinctFromEmpty(t *testing.T) {
	t.Parallel()

	h := newStreamHarness(t)

	// Metadata without a backing content object.
	ctx := context.Background()
	logID := uuid.New()
	require.NoError(t, h.logs.Create(ctx, journal.NewLog(logID, uuid.New(), journal.LogTypeAction, "devops/alice/assignUsername")))

	err := h.str.Stream(ctx, logID, 0, func(p []byte) error { return nil })
	require.ErrorIs(t, err, journal.ErrContentNotFound)

	// Empty content streams (nothing yet) rather than failing.
	emptyID := h.seedLog(t, "")
	streamCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()

	err = h.str.Stream(streamCtx, emptyID, 0, func(p []byte) error { return nil })
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamerStopsWhenSinkFails(t *testing.T) {
	t.Parallel()

	h := newStreamHarness(t)
	logID := h.seedLog(t, "content\n")

	sinkErr := errors.New("client went away")
	err := h.str.Stream(context.Background(), logID, 0, func(p []byte) error { return sinkErr })
	require.ErrorIs(t, err, sinkErr)
}
