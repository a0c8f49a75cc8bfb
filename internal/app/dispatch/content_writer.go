package dispatch

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/pkg/common/logger"
)

// contentWriter adapts the content store to io.Writer for action bodies.
// Appends are fire-and-forget: a failed append is logged but never fails
// the action, since the log is an observability aid, not part of the
// action's state.
type contentWriter struct {
	ctx     context.Context
	content journal.ContentStore
	logID   uuid.UUID
	logger  *logger.Logger
}

func newContentWriter(ctx context.Context, content journal.ContentStore, logID uuid.UUID, log *logger.Logger) io.Writer {
	return &contentWriter{ctx: ctx, content: content, logID: logID, logger: log}
}

func (w *contentWriter) Write(p []byte) (int, error) {
	if err := w.content.Append(w.ctx, w.logID, p); err != nil {
		w.logger.Error(w.ctx, "appending action log content", "log_id", w.logID, "err", err)
	}
	return len(p), nil
}
