package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

// Input is the activation a filter rule is evaluated against. Object is the
// transformed record body.
type Input struct {
	Topic  string
	Action string
	ID     string
	Object map[string]interface{}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("object", cel.MapType(cel.StringType, cel.DynType)),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateFilterExpression reports whether expression compiles to a bool
// rule over topic, action, id and object.
func (e *Evaluator) ValidateFilterExpression(expression string) error {
	_, err := e.compileBool(expression)
	return err
}

func (e *Evaluator) compileBool(expression string) (*cel.Ast, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile CEL expression %q: %w", expression, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression %q must return bool, got %v", expression, ast.OutputType())
	}
	return ast, nil
}

// Filter is a compiled boolean rule.
type Filter struct {
	Expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Filter, error) {
	ast, err := e.compileBool(expression)
	if err != nil {
		return nil, err
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Filter{Expression: expression, program: program}, nil
}

// CompileFilters compiles every expression, failing on the first bad one.
func (e *Evaluator) CompileFilters(expressions []string) ([]*Filter, error) {
	filters := make([]*Filter, 0, len(expressions))
	for _, expr := range expressions {
		f, err := e.CompileFilter(expr)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

func (f *Filter) Evaluate(ctx context.Context, in Input) (bool, error) {
	object := in.Object
	if object == nil {
		object = map[string]interface{}{}
	}

	vars := map[string]interface{}{
		"topic":  in.Topic,
		"action": in.Action,
		"id":     in.ID,
		"object": object,
	}

	result, _, err := f.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression %q: %w", f.Expression, err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// All reports whether every filter accepts in. An empty set accepts.
func All(ctx context.Context, filters []*Filter, in Input) (bool, *Filter, error) {
	for _, f := range filters {
		ok, err := f.Evaluate(ctx, in)
		if err != nil {
			return false, f, err
		}
		if !ok {
			return false, f, nil
		}
	}
	return true, nil, nil
}
