// Package constraint implements composable safety predicates evaluated
// against a proposed operation step and ambient context.
//
// Constraints compose by logical AND: a step fails if any constraint fails.
// A constraint that cannot evaluate (missing context) must fail closed and
// report itself as not satisfied. Constraints never change risk levels; a
// failing constraint can only force an approval requirement upstream.
package constraint

import (
	"time"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// Constraint is a named safety predicate over an operation step.
type Constraint interface {
	// Name identifies the constraint in failure reasons and audit records.
	Name() string

	// Evaluate checks the step against this constraint. Implementations
	// must fail closed: when a required input is missing or ambiguous the
	// result is not satisfied, never a pass.
	Evaluate(step contracts.OperationStep, ectx EvalContext) Result
}

// EvalContext carries ambient inputs for constraint evaluation.
// Wall-clock time is injected so evaluation stays deterministic in tests.
type EvalContext struct {
	Now time.Time
}

// Result is the outcome of evaluating one constraint against one step.
// Reason is always non-empty when Satisfied is false.
type Result struct {
	Satisfied bool   `json:"satisfied"`
	Reason    string `json:"reason,omitempty"`
}

func ok() Result {
	return Result{Satisfied: true}
}

func failed(reason string) Result {
	if reason == "" {
		reason = "constraint not satisfied"
	}
	return Result{Satisfied: false, Reason: reason}
}
