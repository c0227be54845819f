package contracts

import "time"

// Category groups operations by their effect on the database.
type Category string

const (
	CategoryRead    Category = "read"
	CategoryWrite   Category = "write"
	CategoryDDL     Category = "ddl"
	CategoryBackup  Category = "backup"
	CategoryRestore Category = "restore"
)

// SafetyLevel controls how aggressively validation escalates risk into
// approval requirements.
type SafetyLevel string

const (
	// SafetyStrict requires approval for any HIGH or CRITICAL risk.
	SafetyStrict SafetyLevel = "strict"

	// SafetyModerate requires approval only for CRITICAL risk; HIGH becomes optional.
	SafetyModerate SafetyLevel = "moderate"

	// SafetyPermissive requires approval only when the tool itself declares it.
	SafetyPermissive SafetyLevel = "permissive"
)

// IsValid reports whether the level is one of the supported values.
func (l SafetyLevel) IsValid() bool {
	switch l {
	case SafetyStrict, SafetyModerate, SafetyPermissive:
		return true
	default:
		return false
	}
}

// ToolDescriptor is the registry-supplied metadata for an operation.
// The declared base risk is authoritative input and never re-derived.
type ToolDescriptor struct {
	Name             string    `json:"name"`
	Category         Category  `json:"category"`
	BaseRisk         RiskLevel `json:"base_risk"`
	RequiresApproval bool      `json:"requires_approval"`
	Destructive      bool      `json:"destructive"`
}

// WorkflowContext carries workflow-level facts that single-step validation
// cannot see, such as whether a backup already succeeded in this workflow.
// It is also the carrier for constraint evaluation inputs (table sizes,
// affected-row estimates) supplied by the planner.
type WorkflowContext struct {
	WorkflowID string `json:"workflow_id,omitempty"`

	// CompletedCategories lists the categories of steps that finished
	// successfully earlier in the same workflow, in order.
	CompletedCategories []Category `json:"completed_categories,omitempty"`

	// EstimatedRows is the planner's estimate of rows affected by the step.
	// Nil means unknown; constraints that need it must fail closed.
	EstimatedRows *int64 `json:"estimated_rows,omitempty"`

	// TableSizes maps table name to row count, when known.
	TableSizes map[string]int64 `json:"table_sizes,omitempty"`
}

// OperationStep is one candidate action produced by the planner.
// Immutable once submitted for validation; owned by the caller.
type OperationStep struct {
	StepID    string         `json:"step_id"`
	Operation string         `json:"operation"`
	Category  Category       `json:"category"`
	Params    map[string]any `json:"params,omitempty"`

	// Statement is the embedded SQL/DDL text, if the operation carries one.
	Statement string `json:"statement,omitempty"`

	Tool      ToolDescriptor   `json:"tool"`
	Workflow  *WorkflowContext `json:"workflow,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
