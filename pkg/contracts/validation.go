package contracts

import "time"

// OperationAnalysis is the classifier's verdict on an embedded statement.
// It is advisory: regex classification cannot parse every SQL dialect, and
// SafeToExecute is never a substitute for least-privilege database permissions.
type OperationAnalysis struct {
	RiskLevel RiskLevel `json:"risk_level"`

	// RequiresConfirmation is true for HIGH and CRITICAL classifications.
	RequiresConfirmation bool `json:"requires_confirmation"`

	// Warnings describe risk-relevant findings, ordered by detection.
	Warnings []string `json:"warnings,omitempty"`

	// Issues describe structural problems (injection shapes, multiple
	// statements, style) that do not change the risk level.
	Issues []string `json:"issues,omitempty"`

	// SafeToExecute is true iff the risk level is at most MEDIUM and no
	// issue flags an injection or multi-statement risk.
	SafeToExecute bool `json:"safe_to_execute"`
}

// ValidationResult is the safety controller's verdict for one step.
// Created once per OperationStep, immutable, persisted verbatim into the
// audit trail alongside the approval decision.
type ValidationResult struct {
	StepID    string    `json:"step_id"`
	Operation string    `json:"operation"`
	RiskLevel RiskLevel `json:"risk_level"`

	RequiresApproval    bool                `json:"requires_approval"`
	ApprovalRequirement ApprovalRequirement `json:"approval_requirement"`

	// Risks and Mitigations are ordered human-readable explanations.
	Risks       []string `json:"risks,omitempty"`
	Mitigations []string `json:"mitigations,omitempty"`

	// Analysis is present when the step carried an embedded statement.
	Analysis *OperationAnalysis `json:"analysis,omitempty"`

	SafetyLevel SafetyLevel `json:"safety_level"`
	ValidatedAt time.Time   `json:"validated_at"`
}
