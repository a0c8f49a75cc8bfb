// Package fs stores log content as one append-only file per log id.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/journal"
)

// ContentStore implements journal.ContentStore on the local filesystem.
// Files are only ever created empty and appended to, so a reader holding a
// byte offset can safely re-read from that offset as the file grows.
type ContentStore struct {
	dir string
}

var _ journal.ContentStore = (*ContentStore)(nil)

// NewContentStore creates the store, making the backing directory if needed.
func NewContentStore(dir string) (*ContentStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log content dir: %w", err)
	}
	return &ContentStore{dir: dir}, nil
}

func (s *ContentStore) path(logID uuid.UUID) string {
	return filepath.Join(s.dir, logID.String()+".log")
}

func (s *ContentStore) Create(ctx context.Context, logID uuid.UUID) error {
	f, err := os.OpenFile(s.path(logID), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("creating log content: %w", err)
	}
	return f.Close()
}

func (s *ContentStore) Append(ctx context.Context, logID uuid.UUID, p []byte) error {
	f, err := os.OpenFile(s.path(logID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log content for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(p); err != nil {
		return fmt.Errorf("appending log content: %w", err)
	}
	return nil
}

func (s *ContentStore) ReadFrom(ctx context.Context, logID uuid.UUID, offset int64) ([]byte, error) {
	f, err := os.Open(s.path(logID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, journal.ErrContentNotFound
		}
		return nil, fmt.Errorf("opening log content: %w", err)
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seeking log content: %w", err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading log content: %w", err)
	}
	return data, nil
}

func (s *ContentStore) Size(ctx context.Context, logID uuid.UUID) (int64, error) {
	info, err := os.Stat(s.path(logID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, journal.ErrContentNotFound
		}
		return 0, fmt.Errorf("stat log content: %w", err)
	}
	return info.Size(), nil
}
