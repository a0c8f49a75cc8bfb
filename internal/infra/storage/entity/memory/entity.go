// Package memory provides in-memory implementations of the entity ports
// for testing and development.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// EntityStore is an in-memory entity.Repository keyed by entity id.
type EntityStore struct {
	mu       sync.Mutex
	entities map[uuid.UUID]*entity.Entity
	order    []uuid.UUID
}

// NewEntityStore creates a new in-memory entity store.
func NewEntityStore() *EntityStore {
	return &EntityStore{entities: make(map[uuid.UUID]*entity.Entity)}
}

func (s *EntityStore) Create(ctx context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[e.ID()] = copyEntity(e)
	s.order = append(s.order, e.ID())
	return nil
}

func (s *EntityStore) GetByID(ctx context.Context, id uuid.UUID) (*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return nil, entity.ErrNotFound
	}
	return copyEntity(e), nil
}

func (s *EntityStore) Update(ctx context.Context, e *entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.entities[e.ID()]
	if !exists {
		return entity.ErrNotFound
	}

	// The locked flag belongs to the lock repository; carry it over.
	next := entity.ReconstructEntity(
		e.ID(), e.Kind(), e.CourseType(), e.Name(),
		e.ParentID(), e.DefinitionID(), e.PhaseInstanceIDs(),
		prev.Locked(), e.Blocked(), e.Attrs(),
		e.CreatedAt(), e.UpdatedAt(),
	)
	s.entities[e.ID()] = next
	return nil
}

func (s *EntityStore) ListCourseInstances(ctx context.Context, courseID uuid.UUID) ([]*entity.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*entity.Entity
	for _, id := range s.order {
		e := s.entities[id]
		if e.Kind() == entity.KindCourseInstance && e.DefinitionID() == courseID {
			out = append(out, copyEntity(e))
		}
	}
	return out, nil
}

// AcquireLock sets locked=true iff currently false, under the store mutex.
func (s *EntityStore) AcquireLock(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return entity.ErrNotFound
	}
	if e.Locked() {
		return entity.ErrLocked
	}
	s.entities[id] = withLocked(e, true)
	return nil
}

func (s *EntityStore) ReleaseLock(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entities[id]
	if !exists {
		return nil
	}
	s.entities[id] = withLocked(e, false)
	return nil
}

func (s *EntityStore) ReleaseAllLocks(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var released int64
	for id, e := range s.entities {
		if e.Locked() {
			s.entities[id] = withLocked(e, false)
			released++
		}
	}
	return released, nil
}

func copyEntity(e *entity.Entity) *entity.Entity {
	return entity.ReconstructEntity(
		e.ID(), e.Kind(), e.CourseType(), e.Name(),
		e.ParentID(), e.DefinitionID(), e.PhaseInstanceIDs(),
		e.Locked(), e.Blocked(), e.Attrs(),
		e.CreatedAt(), e.UpdatedAt(),
	)
}

func withLocked(e *entity.Entity, locked bool) *entity.Entity {
	return entity.ReconstructEntity(
		e.ID(), e.Kind(), e.CourseType(), e.Name(),
		e.ParentID(), e.DefinitionID(), e.PhaseInstanceIDs(),
		locked, e.Blocked(), e.Attrs(),
		e.CreatedAt(), e.UpdatedAt(),
	)
}
