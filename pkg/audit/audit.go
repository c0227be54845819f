// Package audit implements the append-only trail of validation and
// approval decisions.
//
// The trail is the only place historical decisions are queryable from.
// Its public contract exposes no mutation or deletion; retention and
// rotation belong to external collaborators.
package audit

import (
	"errors"
	"time"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

var (
	// ErrWrite is returned when an entry could not be persisted. Callers
	// must treat an un-audited decision as invalid.
	ErrWrite = errors.New("audit write failed")

	// ErrChainBroken is returned by chain verification when an entry's
	// hash linkage does not hold.
	ErrChainBroken = errors.New("audit hash chain is broken")
)

// Entry is one immutable record: the validation verdict paired with the
// approval decision that resolved it.
type Entry struct {
	EntryID  string `json:"entry_id"`
	Sequence uint64 `json:"sequence"`

	Validation contracts.ValidationResult `json:"validation"`
	Decision   contracts.ApprovalDecision `json:"decision"`

	DecidedAt time.Time `json:"decided_at"`

	// PreviousHash links this entry to the preceding one; EntryHash covers
	// the entry content plus PreviousHash, giving tamper evidence.
	PreviousHash string `json:"previous_hash"`
	EntryHash    string `json:"entry_hash"`
}

// Filter selects entries from the trail. Zero-valued fields match everything.
type Filter struct {
	// Approved filters by decision outcome when non-nil.
	Approved *bool

	// Approver matches the decision's approver identity (exact or one of
	// the comma-joined quorum identities).
	Approver string

	// MinRisk keeps entries whose validation risk is at or above the level.
	MinRisk *contracts.RiskLevel

	// After/Before bound the decision timestamp (inclusive/exclusive).
	After  *time.Time
	Before *time.Time
}

// Trail is the append-only decision log.
type Trail interface {
	// Record appends one entry. Every approval request produces exactly
	// one Record call, regardless of outcome.
	Record(validation contracts.ValidationResult, decision contracts.ApprovalDecision) (*Entry, error)

	// Query returns entries matching the filter, in decision order.
	Query(f Filter) ([]Entry, error)

	// Recent returns the most recent n entries, oldest first.
	Recent(n int) ([]Entry, error)
}
