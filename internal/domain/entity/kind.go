package entity

import "errors"

// Kind discriminates the concrete variant of a learning unit record.
type Kind string

// The hierarchy has three definition levels, each with a per-learner
// instance twin.
const (
	KindCourse         Kind = "course"
	KindPhase          Kind = "phase"
	KindTask           Kind = "task"
	KindCourseInstance Kind = "course_instance"
	KindPhaseInstance  Kind = "phase_instance"
	KindTaskInstance   Kind = "task_instance"
)

// ErrKindUnknown indicates a kind string that names no known variant.
var ErrKindUnknown = errors.New("entity kind unknown")

// ParseKind converts a string to a Kind, validating it against the known set.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindCourse, KindPhase, KindTask,
		KindCourseInstance, KindPhaseInstance, KindTaskInstance:
		return Kind(s), nil
	}
	return "", ErrKindUnknown
}

func (k Kind) String() string { return string(k) }

// IsInstance reports whether the kind is a per-learner instance variant.
func (k Kind) IsInstance() bool {
	switch k {
	case KindCourseInstance, KindPhaseInstance, KindTaskInstance:
		return true
	}
	return false
}

// Definition returns the definition kind an instance kind mirrors.
// For definition kinds it returns the kind unchanged.
func (k Kind) Definition() Kind {
	switch k {
	case KindCourseInstance:
		return KindCourse
	case KindPhaseInstance:
		return KindPhase
	case KindTaskInstance:
		return KindTask
	}
	return k
}
