package action

import (
	"errors"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// ErrUnknownAction indicates no implementation is bound to the requested
// (course type, entity kind, action name) combination.
var ErrUnknownAction = errors.New("unknown action")

// WildcardCourseType registers an action for every course plugin.
const WildcardCourseType = "*"

type registryKey struct {
	courseType string
	kind       entity.Kind
	name       string
}

// Registry maps a type discriminator to a statically-known action
// implementation. It is built once during startup wiring and is read-only
// afterwards, so lookups need no synchronization.
type Registry struct {
	actions map[registryKey]Action
}

// NewRegistry creates an empty action registry.
func NewRegistry() *Registry {
	return &Registry{actions: make(map[registryKey]Action)}
}

// Register binds an action to a course type and entity kind. Registering the
// same key twice replaces the earlier binding, letting course plugins
// override shared defaults.
func (r *Registry) Register(courseType string, kind entity.Kind, a Action) {
	r.actions[registryKey{courseType: courseType, kind: kind, name: a.Name()}] = a
}

// Resolve returns the action bound to the entity's type and the given name.
// Course-type-specific bindings take precedence over wildcard bindings.
func (r *Registry) Resolve(courseType string, kind entity.Kind, name string) (Action, error) {
	if a, ok := r.actions[registryKey{courseType: courseType, kind: kind, name: name}]; ok {
		return a, nil
	}
	if a, ok := r.actions[registryKey{courseType: WildcardCourseType, kind: kind, name: name}]; ok {
		return a, nil
	}
	return nil, ErrUnknownAction
}
