// Package logstream delivers log content incrementally: historical replay
// from a byte offset, then tailing live growth at a bounded poll interval.
package logstream

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/journal"
	"github.com/opencampus/campusd/pkg/common/logger"
)

// DefaultPollInterval bounds how often the streamer re-checks for new
// content while tailing.
const DefaultPollInterval = time.Second

// Sink receives chunks of log content in order. Returning an error stops
// the stream; the action producing the log is unaffected.
type Sink func(p []byte) error

// Streamer serves a log's content over a live connection with resumable
// byte offsets.
type Streamer struct {
	logs    journal.MetadataRepository
	content journal.ContentStore
	logger  *logger.Logger

	pollInterval time.Duration
}

// NewStreamer creates a streamer with the default poll interval.
func NewStreamer(logs journal.MetadataRepository, content journal.ContentStore, log *logger.Logger) *Streamer {
	return &Streamer{
		logs:         logs,
		content:      content,
		logger:       log,
		pollInterval: DefaultPollInterval,
	}
}

// WithPollInterval overrides the tail poll interval. Used by tests to avoid
// waiting out full seconds.
func (s *Streamer) WithPollInterval(d time.Duration) *Streamer {
	s.pollInterval = d
	return s
}

// Stream replays content from offset, then tails live growth until ctx is
// cancelled (client disconnect) or the sink returns an error. Delivery is
// prefix-consistent: every byte from the starting offset onward is emitted
// exactly once, in order.
//
// Returns journal.ErrLogNotFound for an unknown log id and
// journal.ErrContentNotFound when no backing content object exists yet.
func (s *Streamer) Stream(ctx context.Context, logID uuid.UUID, offset int64, sink Sink) error {
	if _, err := s.logs.GetByID(ctx, logID); err != nil {
		return err
	}

	// Initial replay. A missing content object is reported distinctly from
	// empty content so callers can tell "no log yet" from "nothing written".
	chunk, err := s.content.ReadFrom(ctx, logID, offset)
	if err != nil {
		return err
	}
	if len(chunk) > 0 {
		if err := sink(chunk); err != nil {
			return err
		}
		offset += int64(len(chunk))
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		chunk, err := s.content.ReadFrom(ctx, logID, offset)
		if err != nil {
			// The content object existed at replay time; treat a transient
			// read failure as no new content and keep tailing.
			if errors.Is(err, journal.ErrContentNotFound) {
				continue
			}
			return err
		}
		if len(chunk) == 0 {
			continue
		}

		if err := sink(chunk); err != nil {
			return err
		}
		offset += int64(len(chunk))
	}
}
