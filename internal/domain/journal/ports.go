package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrLogNotFound indicates the metadata record does not exist.
	ErrLogNotFound = errors.New("log not found")

	// ErrContentNotFound indicates the backing content object does not exist.
	// Distinct from content that exists but is still empty.
	ErrContentNotFound = errors.New("log content not found")
)

// MetadataRepository persists log metadata records.
type MetadataRepository interface {
	Create(ctx context.Context, l *Log) error

	// GetByID fetches a record regardless of its age.
	GetByID(ctx context.Context, id uuid.UUID) (*Log, error)

	// ListByCourse returns records for a course whose timestamp falls within
	// the retention window ending at now.
	ListByCourse(ctx context.Context, courseID uuid.UUID, now time.Time) ([]*Log, error)
}

// ContentStore is the append-only byte store backing each log record.
// Content is UTF-8 text, appended line-wise by the owning run.
type ContentStore interface {
	// Create allocates the empty backing object for a log id.
	Create(ctx context.Context, logID uuid.UUID) error

	// Append adds bytes at the end of the content.
	Append(ctx context.Context, logID uuid.UUID, p []byte) error

	// ReadFrom returns content from offset to the current end.
	// Returns ErrContentNotFound if no backing object exists.
	ReadFrom(ctx context.Context, logID uuid.UUID, offset int64) ([]byte, error)

	// Size returns the current content length in bytes.
	Size(ctx context.Context, logID uuid.UUID) (int64, error)
}
