// Package action defines entity-type-specific operations and the registry
// that resolves them at dispatch time.
package action

import (
	"context"
	"encoding/json"
	"io"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// ExecContext carries everything an action body needs: the target entity,
// the caller-supplied params, the resolved caller identity and a writer for
// the action's log. The body owns all appends to its log.
type ExecContext struct {
	Entity *entity.Entity
	Params json.RawMessage
	Caller string
	Log    io.Writer
}

// Action is a named operation bound to an entity type. Execute may mutate
// the target entity and write to the log; the returned payload is recorded
// in the entity's history on success.
type Action interface {
	Name() string
	Execute(ctx context.Context, ec *ExecContext) (json.RawMessage, error)
}

// Func adapts a plain function to the Action interface.
type Func struct {
	ActionName string
	Fn         func(ctx context.Context, ec *ExecContext) (json.RawMessage, error)
}

func (f Func) Name() string { return f.ActionName }

func (f Func) Execute(ctx context.Context, ec *ExecContext) (json.RawMessage, error) {
	return f.Fn(ctx, ec)
}
