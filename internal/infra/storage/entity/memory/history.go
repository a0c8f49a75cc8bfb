package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// HistoryStore is an in-memory entity.HistoryRepository preserving append order.
type HistoryStore struct {
	mu     sync.Mutex
	events map[uuid.UUID][]entity.HistoryEvent
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{events: make(map[uuid.UUID][]entity.HistoryEvent)}
}

func (s *HistoryStore) Append(ctx context.Context, entityID uuid.UUID, event entity.HistoryEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[entityID] = append(s.events[entityID], event)
	return nil
}

func (s *HistoryStore) List(ctx context.Context, entityID uuid.UUID) ([]entity.HistoryEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.events[entityID]
	out := make([]entity.HistoryEvent, len(events))
	copy(out, events)
	return out, nil
}
