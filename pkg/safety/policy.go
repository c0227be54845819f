// Package safety implements the validation verdict: it combines a tool's
// declared base risk, statement classification, and constraint results into
// a single ValidationResult with an approval requirement.
package safety

import (
	"time"

	"github.com/warden-labs/warden/core/pkg/constraint"
	"github.com/warden-labs/warden/core/pkg/contracts"
)

// DefaultQuorum is the multi-party quorum applied to destructive operations
// when the policy does not configure one.
const DefaultQuorum = 2

// DefaultApprovalTimeout bounds approval waits when the caller does not
// supply a timeout.
const DefaultApprovalTimeout = 5 * time.Minute

// Fixed strings appended by the destructive-operation override. Kept as
// constants so audit consumers can match on them.
const (
	RiskIrreversible     = "operation is potentially irreversible"
	MitigationMultiParty = "multi-party approval required"
)

// Policy is an immutable snapshot of validation configuration. It is built
// once (from config or by hand) and injected into a Controller; concurrent
// validations can never observe a half-updated policy.
type Policy struct {
	Level contracts.SafetyLevel

	// DestructiveOperations names operations that always demand
	// multi-party approval, independent of safety level.
	DestructiveOperations []string

	// Quorum is the multi-party approver count for destructive operations.
	// Values below 2 fall back to DefaultQuorum.
	Quorum int

	// ApprovalTimeout is the default timeout handed to the approval
	// coordinator. Zero falls back to DefaultApprovalTimeout.
	ApprovalTimeout time.Duration

	// Constraints is the active constraint engine snapshot. Nil means no
	// constraints.
	Constraints *constraint.Engine
}

func (p Policy) quorum() int {
	if p.Quorum < 2 {
		return DefaultQuorum
	}
	return p.Quorum
}

// Timeout returns the effective approval timeout.
func (p Policy) Timeout() time.Duration {
	if p.ApprovalTimeout <= 0 {
		return DefaultApprovalTimeout
	}
	return p.ApprovalTimeout
}
