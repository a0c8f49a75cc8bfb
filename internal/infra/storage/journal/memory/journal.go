// Package memory provides in-memory implementations of the journal ports
// for testing and development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/journal"
)

// LogStore is an in-memory journal.MetadataRepository.
type LogStore struct {
	mu   sync.Mutex
	logs map[uuid.UUID]*journal.Log
}

// NewLogStore creates a new in-memory log metadata store.
func NewLogStore() *LogStore {
	return &LogStore{logs: make(map[uuid.UUID]*journal.Log)}
}

func (s *LogStore) Create(ctx context.Context, l *journal.Log) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs[l.ID()] = journal.ReconstructLog(l.ID(), l.CourseID(), l.Type(), l.Name(), l.Timestamp())
	return nil
}

func (s *LogStore) GetByID(ctx context.Context, id uuid.UUID) (*journal.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, exists := s.logs[id]
	if !exists {
		return nil, journal.ErrLogNotFound
	}
	return journal.ReconstructLog(l.ID(), l.CourseID(), l.Type(), l.Name(), l.Timestamp()), nil
}

func (s *LogStore) ListByCourse(ctx context.Context, courseID uuid.UUID, now time.Time) ([]*journal.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-journal.RetentionWindow)
	var out []*journal.Log
	for _, l := range s.logs {
		if l.CourseID() == courseID && !l.Timestamp().Before(cutoff) {
			out = append(out, journal.ReconstructLog(l.ID(), l.CourseID(), l.Type(), l.Name(), l.Timestamp()))
		}
	}
	return out, nil
}

// ContentStore is an in-memory journal.ContentStore.
type ContentStore struct {
	mu      sync.Mutex
	content map[uuid.UUID][]byte
}

// NewContentStore creates a new in-memory content store.
func NewContentStore() *ContentStore {
	return &ContentStore{content: make(map[uuid.UUID][]byte)}
}

func (s *ContentStore) Create(ctx context.Context, logID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.content[logID]; !exists {
		s.content[logID] = []byte{}
	}
	return nil
}

func (s *ContentStore) Append(ctx context.Context, logID uuid.UUID, p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.content[logID] = append(s.content[logID], p...)
	return nil
}

func (s *ContentStore) ReadFrom(ctx context.Context, logID uuid.UUID, offset int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, exists := s.content[logID]
	if !exists {
		return nil, journal.ErrContentNotFound
	}
	if offset >= int64(len(content)) {
		return nil, nil
	}

	out := make([]byte, int64(len(content))-offset)
	copy(out, content[offset:])
	return out, nil
}

func (s *ContentStore) Size(ctx context.Context, logID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	content, exists := s.content[logID]
	if !exists {
		return 0, journal.ErrContentNotFound
	}
	return int64(len(content)), nil
}
