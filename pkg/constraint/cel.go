package constraint

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// CELConstraint evaluates an operator-authored CEL expression against the
// step. The expression sees two variables:
//
//	step: map with operation, category, statement, params, estimated_rows,
//	      table_sizes (estimated_rows is -1 when unknown)
//	now:  unix timestamp (seconds) of the evaluation
//
// The expression must evaluate to a bool; true means satisfied. Any
// compile or evaluation error fails closed.
type CELConstraint struct {
	name string
	expr string
	prg  cel.Program
}

// NewCELConstraint compiles the expression once. A malformed expression is
// a configuration error, surfaced at construction rather than per call.
func NewCELConstraint(name, expr string) (*CELConstraint, error) {
	env, err := cel.NewEnv(
		cel.Variable("step", cel.DynType),
		cel.Variable("now", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile constraint %q: %w", name, issues.Err())
	}

	prg, err := env.Program(ast,
		cel.InterruptCheckFrequency(100),
		cel.CostLimit(10000),
	)
	if err != nil {
		return nil, fmt.Errorf("program constraint %q: %w", name, err)
	}

	return &CELConstraint{name: name, expr: expr, prg: prg}, nil
}

func (c *CELConstraint) Name() string { return c.name }

// Expression returns the source expression, for audit and explain output.
func (c *CELConstraint) Expression() string { return c.expr }

func (c *CELConstraint) Evaluate(step contracts.OperationStep, ectx EvalContext) Result {
	input := map[string]any{
		"now":  ectx.Now.Unix(),
		"step": stepInput(step),
	}

	out, _, err := c.prg.Eval(input)
	if err != nil {
		return failed(fmt.Sprintf("constraint %q evaluation error: %v", c.name, err))
	}
	satisfied, isBool := out.Value().(bool)
	if !isBool {
		return failed(fmt.Sprintf("constraint %q did not evaluate to bool", c.name))
	}
	if !satisfied {
		return failed(fmt.Sprintf("expression %q not satisfied", c.expr))
	}
	return ok()
}

func stepInput(step contracts.OperationStep) map[string]any {
	params := make(map[string]any, len(step.Params))
	for k, v := range step.Params {
		params[k] = v
	}

	var estimated int64 = -1
	tableSizes := map[string]int64{}
	if step.Workflow != nil {
		if step.Workflow.EstimatedRows != nil {
			estimated = *step.Workflow.EstimatedRows
		}
		for k, v := range step.Workflow.TableSizes {
			tableSizes[k] = v
		}
	}

	return map[string]any{
		"operation":      step.Operation,
		"category":       string(step.Category),
		"statement":      step.Statement,
		"params":         params,
		"estimated_rows": estimated,
		"table_sizes":    tableSizes,
	}
}
