// Package filter selects scene graph mutations with CEL expressions.
//
// A Filter is compiled once and evaluated against every mutation. The
// expression sees these variables:
//
//	op          string               mutation name, e.g. "AddNode", "SetTransform"
//	id          string               target or assigned ID
//	parent      string               parent ID, "" when the mutation has none
//	attributes  map(string, string)  attributes of the mutation, last value per key
//	attrs       list(map)            every attribute as {"key": k, "value": v}
//	stamp       double               version stamp in ms, 0 when unset
//	forced      bool                 whether the ID was supplied by the caller
//
// Examples:
//
//	op != "SetTransform"
//	attributes["rsg:agent_policy"] != "send no Atoms"
//	attrs.exists(a, a.key == "name" && a.value.startsWith("tmp_"))
//
// Observer wraps an output observer so that only matching mutations leave
// the replica; Target wraps the store's Apply so that only matching
// received mutations are applied.
package filter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"

	"github.com/zero-day-ai/rsg/update"
)

// Filter is a compiled mutation predicate. It is safe for concurrent use.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile parses and type-checks expr, which must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	env, err := cel.NewEnv(
		cel.Variable("op", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("parent", cel.StringType),
		cel.Variable("attributes", cel.MapType(cel.StringType, cel.StringType)),
		cel.Variable("attrs", cel.ListType(cel.MapType(cel.StringType, cel.StringType))),
		cel.Variable("stamp", cel.DoubleType),
		cel.Variable("forced", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, not %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}
	return &Filter{expr: expr, program: program}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(expr string) *Filter {
	f, err := Compile(expr)
	if err != nil {
		panic(err)
	}
	return f
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter for m.
func (f *Filter) Match(m update.Mutation) (bool, error) {
	out, _, err := f.program.Eval(activation(m))
	if err != nil {
		return false, fmt.Errorf("evaluate filter %q: %w", f.expr, err)
	}
	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T", f.expr, out.Value())
	}
	return matched, nil
}

func activation(m update.Mutation) map[string]any {
	attributes := make(map[string]string, len(m.Attributes))
	attrs := make([]map[string]string, len(m.Attributes))
	for i, a := range m.Attributes {
		attributes[a.Key] = a.Value
		attrs[i] = map[string]string{"key": a.Key, "value": a.Value}
	}
	parent := ""
	if !m.ParentID.IsNil() {
		parent = m.ParentID.String()
	}
	return map[string]any{
		"op":         string(m.Op),
		"id":         m.ID.String(),
		"parent":     parent,
		"attributes": attributes,
		"attrs":      attrs,
		"stamp":      m.Stamp.Millis(),
		"forced":     m.Forced,
	}
}

// Applier performs a mutation. *scene.Store implements it.
type Applier interface {
	Apply(ctx context.Context, m update.Mutation) error
}

// Observer forwards matching mutations to next and drops the rest.
// Evaluation errors are returned to the dispatcher and nothing is forwarded.
func (f *Filter) Observer(next update.Observer, logger *slog.Logger) update.Observer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "filter", "filter", f.expr)
	return update.ObserverFunc(func(ctx context.Context, m update.Mutation) error {
		ok, err := f.Match(m)
		if err != nil {
			return err
		}
		if !ok {
			logger.Debug("mutation filtered", "op", m.Op, "id", m.ID)
			return nil
		}
		return m.Apply(ctx, next)
	})
}

// Target applies matching mutations to next and silently drops the rest.
func (f *Filter) Target(next Applier, logger *slog.Logger) Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &target{filter: f, next: next, logger: logger.With("component", "filter", "filter", f.expr)}
}

type target struct {
	filter *Filter
	next   Applier
	logger *slog.Logger
}

func (t *target) Apply(ctx context.Context, m update.Mutation) error {
	ok, err := t.filter.Match(m)
	if err != nil {
		return err
	}
	if !ok {
		t.logger.Debug("received mutation filtered", "op", m.Op, "id", m.ID)
		return nil
	}
	return t.next.Apply(ctx, m)
}
