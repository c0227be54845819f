package contracts

import (
	"fmt"
	"time"
)

// RequirementKind states whether, and by how many parties, an operation must
// be approved before execution.
type RequirementKind string

const (
	RequirementNone       RequirementKind = "NONE"
	RequirementOptional   RequirementKind = "OPTIONAL"
	RequirementRequired   RequirementKind = "REQUIRED"
	RequirementMultiParty RequirementKind = "MULTI_PARTY"
)

// requirementStrength orders requirement kinds so upgrades never downgrade.
var requirementStrength = map[RequirementKind]int{
	RequirementNone:       0,
	RequirementOptional:   1,
	RequirementRequired:   2,
	RequirementMultiParty: 3,
}

// ApprovalRequirement is the policy outcome of validation: the kind of
// approval needed and, for MULTI_PARTY, the quorum of distinct approvers.
type ApprovalRequirement struct {
	Kind   RequirementKind `json:"kind"`
	Quorum int             `json:"quorum,omitempty"`
}

// NoApproval is the zero requirement.
func NoApproval() ApprovalRequirement {
	return ApprovalRequirement{Kind: RequirementNone}
}

// MultiParty builds a quorum requirement. Quorum below 2 is raised to 2:
// a single-party "quorum" is just REQUIRED and must not masquerade as one.
func MultiParty(quorum int) ApprovalRequirement {
	if quorum < 2 {
		quorum = 2
	}
	return ApprovalRequirement{Kind: RequirementMultiParty, Quorum: quorum}
}

// Upgrade returns the stronger of the two requirements. MULTI_PARTY can never
// be displaced by a weaker kind; equal MULTI_PARTY keeps the larger quorum.
func (a ApprovalRequirement) Upgrade(b ApprovalRequirement) ApprovalRequirement {
	if requirementStrength[b.Kind] > requirementStrength[a.Kind] {
		return b
	}
	if a.Kind == RequirementMultiParty && b.Kind == RequirementMultiParty && b.Quorum > a.Quorum {
		return b
	}
	return a
}

func (a ApprovalRequirement) String() string {
	if a.Kind == RequirementMultiParty {
		return fmt.Sprintf("%s(%d)", a.Kind, a.Quorum)
	}
	return string(a.Kind)
}

// DecisionState is the closed set of approval request outcomes.
// PENDING is the only non-terminal state.
type DecisionState string

const (
	DecisionPending   DecisionState = "PENDING"
	DecisionApproved  DecisionState = "APPROVED"
	DecisionRejected  DecisionState = "REJECTED"
	DecisionTimedOut  DecisionState = "TIMED_OUT"
	DecisionCancelled DecisionState = "CANCELLED"
)

// Terminal reports whether the state ends the approval lifecycle.
func (s DecisionState) Terminal() bool {
	return s != DecisionPending
}

// ApproverPolicy is the synthetic approver identity recorded when no human
// approval was required and the engine auto-approved for audit uniformity.
const ApproverPolicy = "policy"

// ApproverRequester is recorded when the caller cancelled a pending request.
const ApproverRequester = "requester"

// ApprovalDecision is the immutable outcome of one approval request.
// Exactly one decision exists per ValidationResult that reached the
// coordinator, including the synthesized auto-approval path.
type ApprovalDecision struct {
	DecisionID string        `json:"decision_id"`
	State      DecisionState `json:"state"`
	Approved   bool          `json:"approved"`

	// Approver identifies who decided: a named party, "policy", or "requester".
	// For quorum approvals this is the comma-joined approver list in arrival order.
	Approver string `json:"approver"`

	// Reason is always non-empty for negative outcomes.
	Reason string `json:"reason"`

	// Conditions are obligations attached to an approval
	// (e.g. "must run in maintenance window").
	Conditions []string `json:"conditions,omitempty"`

	DecidedAt time.Time `json:"decided_at"`
}
