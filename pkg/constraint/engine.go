package constraint

import (
	"time"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// Failure records one unsatisfied constraint.
type Failure struct {
	Constraint string `json:"constraint"`
	Reason     string `json:"reason"`
}

// Engine evaluates an immutable snapshot of constraints.
//
// The constraint list is copied at construction and never mutated, so a
// validation call in flight can never observe a half-updated policy.
// Configuration changes build a new Engine.
type Engine struct {
	constraints []Constraint
	clock       func() time.Time
}

// NewEngine snapshots the given constraints.
func NewEngine(constraints ...Constraint) *Engine {
	snapshot := make([]Constraint, len(constraints))
	copy(snapshot, constraints)
	return &Engine{constraints: snapshot, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	e.clock = clock
	return e
}

// Len returns the number of active constraints.
func (e *Engine) Len() int { return len(e.constraints) }

// EvaluateAll runs every constraint against the step and collects failures
// in registration order. An empty result means the step satisfies all
// constraints.
func (e *Engine) EvaluateAll(step contracts.OperationStep) []Failure {
	ectx := EvalContext{Now: e.clock()}

	var failures []Failure
	for _, c := range e.constraints {
		res := c.Evaluate(step, ectx)
		if !res.Satisfied {
			failures = append(failures, Failure{Constraint: c.Name(), Reason: res.Reason})
		}
	}
	return failures
}
