// Package entity defines the learning-unit hierarchy (Course, Phase, Task)
// and the per-learner instance twins that track individual progress.
package entity

import (
	"time"

	"github.com/google/uuid"
)

// Entity is a single record in the learning-unit hierarchy: a Course, Phase
// or Task definition, or one of their per-learner instances. Every entity
// carries a mutable locked flag (action exclusivity), a blocked flag
// (administrative hold) and an append-only history of action outcomes.
type Entity struct {
	id         uuid.UUID
	kind       Kind
	courseType string
	name       string

	// parentID references the enclosing definition (Phase -> Course,
	// Task -> Phase) or, for instances, the enclosing parent instance.
	parentID uuid.UUID

	// definitionID references the definition an instance mirrors.
	// Zero for definition kinds.
	definitionID uuid.UUID

	// phaseInstanceIDs holds the parent phase instances of a task instance.
	// A task shared across phases can appear under several phase instances.
	phaseInstanceIDs []uuid.UUID

	locked  bool
	blocked bool

	// attrs holds free-form, course-plugin-specific instance fields
	// (e.g. status, github_username). Schedule filters evaluate over them.
	attrs map[string]any

	createdAt time.Time
	updatedAt time.Time
}

// NewEntity creates a new entity record in its initial unlocked state.
func NewEntity(id uuid.UUID, kind Kind, courseType, name string) *Entity {
	now := time.Now().UTC()
	return &Entity{
		id:         id,
		kind:       kind,
		courseType: courseType,
		name:       name,
		attrs:      make(map[string]any),
		createdAt:  now,
		updatedAt:  now,
	}
}

// ReconstructEntity creates an Entity from stored fields, bypassing creation
// invariants. This should only be used by repositories when loading from the DB.
func ReconstructEntity(
	id uuid.UUID,
	kind Kind,
	courseType string,
	name string,
	parentID uuid.UUID,
	definitionID uuid.UUID,
	phaseInstanceIDs []uuid.UUID,
	locked bool,
	blocked bool,
	attrs map[string]any,
	createdAt time.Time,
	updatedAt time.Time,
) *Entity {
	if attrs == nil {
		attrs = make(map[string]any)
	}
	return &Entity{
		id:               id,
		kind:             kind,
		courseType:       courseType,
		name:             name,
		parentID:         parentID,
		definitionID:     definitionID,
		phaseInstanceIDs: phaseInstanceIDs,
		locked:           locked,
		blocked:          blocked,
		attrs:            attrs,
		createdAt:        createdAt,
		updatedAt:        updatedAt,
	}
}

func (e *Entity) ID() uuid.UUID       { return e.id }
func (e *Entity) Kind() Kind          { return e.kind }
func (e *Entity) CourseType() string  { return e.courseType }
func (e *Entity) Name() string        { return e.name }
func (e *Entity) ParentID() uuid.UUID { return e.parentID }

// DefinitionID returns the definition this instance mirrors, or the zero
// UUID for definition kinds.
func (e *Entity) DefinitionID() uuid.UUID { return e.definitionID }

// PhaseInstanceIDs returns the parent phase instances of a task instance.
func (e *Entity) PhaseInstanceIDs() []uuid.UUID {
	out := make([]uuid.UUID, len(e.phaseInstanceIDs))
	copy(out, e.phaseInstanceIDs)
	return out
}

func (e *Entity) Locked() bool  { return e.locked }
func (e *Entity) Blocked() bool { return e.blocked }

func (e *Entity) CreatedAt() time.Time { return e.createdAt }
func (e *Entity) UpdatedAt() time.Time { return e.updatedAt }

// Attrs returns a copy of the entity's free-form attribute map.
func (e *Entity) Attrs() map[string]any {
	out := make(map[string]any, len(e.attrs))
	for k, v := range e.attrs {
		out[k] = v
	}
	return out
}

// Attr returns a single attribute value.
func (e *Entity) Attr(key string) (any, bool) {
	v, ok := e.attrs[key]
	return v, ok
}

// SetAttr sets a free-form attribute. Action bodies use this to record
// per-learner progress fields.
func (e *Entity) SetAttr(key string, value any) {
	e.attrs[key] = value
	e.updatedAt = time.Now().UTC()
}

// SetParent links the entity under its enclosing definition or instance.
func (e *Entity) SetParent(parentID uuid.UUID) {
	e.parentID = parentID
	e.updatedAt = time.Now().UTC()
}

// SetDefinition links an instance to the definition it mirrors.
func (e *Entity) SetDefinition(definitionID uuid.UUID) {
	e.definitionID = definitionID
	e.updatedAt = time.Now().UTC()
}

// AddPhaseInstance records an additional parent phase instance for a task
// instance. Duplicate links are ignored.
func (e *Entity) AddPhaseInstance(phaseInstanceID uuid.UUID) {
	for _, id := range e.phaseInstanceIDs {
		if id == phaseInstanceID {
			return
		}
	}
	e.phaseInstanceIDs = append(e.phaseInstanceIDs, phaseInstanceID)
	e.updatedAt = time.Now().UTC()
}

// SetBlocked toggles the administrative hold. Only the administrative
// surface may call this; the engine only ever reads it.
func (e *Entity) SetBlocked(blocked bool) {
	e.blocked = blocked
	e.updatedAt = time.Now().UTC()
}
