package safety

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-labs/warden/core/pkg/classifier"
	"github.com/warden-labs/warden/core/pkg/contracts"
	"github.com/warden-labs/warden/core/pkg/registry"
)

// Controller validates operation steps against an immutable policy snapshot.
//
// Validate is pure apart from reading the injected clock: it is safe to call
// concurrently from multiple pipelines and safe to call repeatedly for
// dry-run tooling.
type Controller struct {
	policy      Policy
	destructive map[string]struct{}
	registry    registry.Registry
	logger      *slog.Logger
	tracer      trace.Tracer
	clock       func() time.Time
}

// NewController builds a controller over a policy snapshot. The registry may
// be nil when every step carries its own tool descriptor.
func NewController(policy Policy, reg registry.Registry) *Controller {
	destructive := make(map[string]struct{}, len(policy.DestructiveOperations))
	for _, op := range policy.DestructiveOperations {
		destructive[op] = struct{}{}
	}
	return &Controller{
		policy:      policy,
		destructive: destructive,
		registry:    reg,
		logger:      slog.Default(),
		tracer:      otel.Tracer("warden/safety"),
		clock:       time.Now,
	}
}

// WithLogger overrides the structured logger.
func (c *Controller) WithLogger(logger *slog.Logger) *Controller {
	c.logger = logger
	return c
}

// WithClock overrides the clock for deterministic testing.
func (c *Controller) WithClock(clock func() time.Time) *Controller {
	c.clock = clock
	return c
}

// Policy returns the controller's policy snapshot.
func (c *Controller) Policy() Policy { return c.policy }

// Validate produces the validation verdict for one step.
//
// The resulting risk level is always at least the tool's declared base risk
// and at least the embedded-statement classification. Constraints and the
// safety level only ever strengthen the approval requirement; the
// destructive-operation override wins over everything else.
func (c *Controller) Validate(ctx context.Context, step contracts.OperationStep) contracts.ValidationResult {
	_, span := c.tracer.Start(ctx, "safety.validate",
		trace.WithAttributes(attribute.String("operation", step.Operation)))
	defer span.End()

	tool := step.Tool
	if tool.Name == "" && c.registry != nil {
		tool, _ = c.registry.Lookup(step.Operation)
	}
	// Category-scoped constraints need the tool's category even when the
	// caller did not set one on the step.
	if step.Category == "" {
		step.Category = tool.Category
	}

	result := contracts.ValidationResult{
		StepID:              step.StepID,
		Operation:           step.Operation,
		RiskLevel:           tool.BaseRisk,
		ApprovalRequirement: contracts.NoApproval(),
		SafetyLevel:         c.policy.Level,
		ValidatedAt:         c.clock().UTC(),
	}

	// Statement classification can only raise the declared risk.
	if step.Statement != "" {
		analysis := classifier.Classify(step.Statement)
		result.Analysis = &analysis
		result.RiskLevel = contracts.MaxRisk(result.RiskLevel, analysis.RiskLevel)
		result.Risks = append(result.Risks, analysis.Warnings...)
	}

	c.applySafetyLevel(&result, tool)
	c.applyConstraints(&result, step)
	c.applyDestructiveOverride(&result, step)

	span.SetAttributes(
		attribute.String("risk_level", result.RiskLevel.String()),
		attribute.String("approval_requirement", result.ApprovalRequirement.String()),
		attribute.Bool("requires_approval", result.RequiresApproval),
	)
	c.logger.Debug("step validated",
		"operation", step.Operation,
		"risk_level", result.RiskLevel.String(),
		"requirement", result.ApprovalRequirement.String(),
	)

	return result
}

func (c *Controller) applySafetyLevel(result *contracts.ValidationResult, tool contracts.ToolDescriptor) {
	switch c.policy.Level {
	case contracts.SafetyStrict:
		if result.RiskLevel.AtLeast(contracts.RiskHigh) {
			result.RequiresApproval = true
			result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(
				contracts.ApprovalRequirement{Kind: contracts.RequirementRequired})
		}
	case contracts.SafetyModerate:
		if result.RiskLevel.AtLeast(contracts.RiskCritical) {
			result.RequiresApproval = true
			result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(
				contracts.ApprovalRequirement{Kind: contracts.RequirementRequired})
		} else if result.RiskLevel.AtLeast(contracts.RiskHigh) {
			result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(
				contracts.ApprovalRequirement{Kind: contracts.RequirementOptional})
		}
	case contracts.SafetyPermissive:
		// Only the tool's own declaration forces approval.
	}

	if tool.RequiresApproval {
		result.RequiresApproval = true
		result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(
			contracts.ApprovalRequirement{Kind: contracts.RequirementRequired})
	}
}

func (c *Controller) applyConstraints(result *contracts.ValidationResult, step contracts.OperationStep) {
	if c.policy.Constraints == nil {
		return
	}
	for _, failure := range c.policy.Constraints.EvaluateAll(step) {
		result.RequiresApproval = true
		result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(
			contracts.ApprovalRequirement{Kind: contracts.RequirementRequired})
		result.Risks = append(result.Risks,
			"constraint "+failure.Constraint+" failed: "+failure.Reason)
	}
}

// applyDestructiveOverride is non-negotiable and independent of safety
// level: destructive operations always demand multi-party approval.
func (c *Controller) applyDestructiveOverride(result *contracts.ValidationResult, step contracts.OperationStep) {
	_, named := c.destructive[step.Operation]
	criticalStatement := result.Analysis != nil && result.Analysis.RiskLevel == contracts.RiskCritical
	if !named && !criticalStatement {
		return
	}

	result.RequiresApproval = true
	result.ApprovalRequirement = result.ApprovalRequirement.Upgrade(contracts.MultiParty(c.policy.quorum()))
	result.Risks = append(result.Risks, RiskIrreversible)
	result.Mitigations = append(result.Mitigations, MitigationMultiParty)
}
