package schedule

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/opencampus/campusd/internal/domain/entity"
)

// Filter is a compiled boolean expression over course-instance fields,
// e.g. `status == "waiting_for_github_username"`.
type Filter struct {
	source  string
	program *vm.Program
}

// CompileFilter parses and type-checks a filter expression. The expression
// sees the instance's free-form attributes as top-level identifiers plus the
// built-ins name, kind and blocked, and must evaluate to a boolean.
func CompileFilter(source string) (*Filter, error) {
	program, err := expr.Compile(source,
		expr.Env(map[string]any{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("compiling filter: %w", err)
	}
	return &Filter{source: source, program: program}, nil
}

// Source returns the original expression text.
func (f *Filter) Source() string { return f.source }

// Matches evaluates the filter against one instance. Attributes absent from
// the instance evaluate as nil, so comparisons against them are simply false.
func (f *Filter) Matches(inst *entity.Entity) (bool, error) {
	env := inst.Attrs()
	env["name"] = inst.Name()
	env["kind"] = inst.Kind().String()
	env["blocked"] = inst.Blocked()

	out, err := expr.Run(f.program, env)
	if err != nil {
		return false, fmt.Errorf("evaluating filter %q: %w", f.source, err)
	}

	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q did not evaluate to a boolean", f.source)
	}
	return matched, nil
}
