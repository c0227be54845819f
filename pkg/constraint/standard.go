package constraint

import (
	"fmt"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// MaxAffectedRows rejects steps whose planner-estimated row count exceeds
// the configured limit. An absent estimate fails closed.
type MaxAffectedRows struct {
	Limit int64
}

func (c MaxAffectedRows) Name() string { return "max_affected_rows" }

func (c MaxAffectedRows) Evaluate(step contracts.OperationStep, _ EvalContext) Result {
	if step.Category == contracts.CategoryRead {
		return ok()
	}
	if step.Workflow == nil || step.Workflow.EstimatedRows == nil {
		return failed("affected row estimate unavailable, failing closed")
	}
	if est := *step.Workflow.EstimatedRows; est > c.Limit {
		return failed(fmt.Sprintf("estimated %d affected rows exceeds limit %d", est, c.Limit))
	}
	return ok()
}

// AllowedHours permits operations only inside a configured set of wall-clock
// hours (0-23), evaluated at validation time.
type AllowedHours struct {
	Hours []int
}

func (c AllowedHours) Name() string { return "allowed_hours" }

func (c AllowedHours) Evaluate(_ contracts.OperationStep, ectx EvalContext) Result {
	if len(c.Hours) == 0 {
		return failed("no allowed hours configured, failing closed")
	}
	hour := ectx.Now.Hour()
	for _, h := range c.Hours {
		if h == hour {
			return ok()
		}
	}
	return failed(fmt.Sprintf("hour %02d outside allowed window %v", hour, c.Hours))
}

// BackupRequired demands that steps of the configured categories are
// preceded, within the same workflow, by a successful backup step.
type BackupRequired struct {
	Categories []contracts.Category
}

func (c BackupRequired) Name() string { return "backup_required" }

func (c BackupRequired) Evaluate(step contracts.OperationStep, _ EvalContext) Result {
	applies := false
	for _, cat := range c.Categories {
		if cat == step.Category {
			applies = true
			break
		}
	}
	if !applies {
		return ok()
	}
	if step.Workflow == nil {
		return failed("workflow context unavailable, cannot verify backup, failing closed")
	}
	for _, done := range step.Workflow.CompletedCategories {
		if done == contracts.CategoryBackup {
			return ok()
		}
	}
	return failed(fmt.Sprintf("no completed backup precedes this %s step", step.Category))
}
