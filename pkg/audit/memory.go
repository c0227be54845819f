package audit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-labs/warden/core/pkg/canonicalize"
	"github.com/warden-labs/warden/core/pkg/contracts"
)

// MemoryTrail is an in-process, hash-chained trail. Appends are serialized
// under a single mutex so entries are never interleaved or lost under
// concurrent validation flows.
type MemoryTrail struct {
	mu        sync.RWMutex
	entries   []Entry
	sequence  uint64
	chainHead string
	clock     func() time.Time
}

// NewMemoryTrail creates an empty trail.
func NewMemoryTrail() *MemoryTrail {
	return &MemoryTrail{
		entries:   make([]Entry, 0),
		chainHead: "genesis",
		clock:     time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (t *MemoryTrail) WithClock(clock func() time.Time) *MemoryTrail {
	t.clock = clock
	return t
}

// Record implements Trail.
func (t *MemoryTrail) Record(validation contracts.ValidationResult, decision contracts.ApprovalDecision) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sequence++
	entry := Entry{
		EntryID:      uuid.New().String(),
		Sequence:     t.sequence,
		Validation:   validation,
		Decision:     decision,
		DecidedAt:    t.clock().UTC(),
		PreviousHash: t.chainHead,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	entry.EntryHash = hash

	t.entries = append(t.entries, entry)
	t.chainHead = hash

	return &entry, nil
}

// Query implements Trail.
func (t *MemoryTrail) Query(f Filter) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []Entry
	for _, e := range t.entries {
		if matches(e, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Recent implements Trail.
func (t *MemoryTrail) Recent(n int) ([]Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if n <= 0 || len(t.entries) == 0 {
		return nil, nil
	}
	if n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, n)
	copy(out, t.entries[len(t.entries)-n:])
	return out, nil
}

// Len returns the number of recorded entries.
func (t *MemoryTrail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// VerifyChain walks the trail and checks every hash link.
func (t *MemoryTrail) VerifyChain() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	prev := "genesis"
	for i, e := range t.entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: link broken at index %d", ErrChainBroken, i)
		}
		want, err := entryHash(Entry{
			EntryID:      e.EntryID,
			Sequence:     e.Sequence,
			Validation:   e.Validation,
			Decision:     e.Decision,
			DecidedAt:    e.DecidedAt,
			PreviousHash: e.PreviousHash,
		})
		if err != nil {
			return err
		}
		if want != e.EntryHash {
			return fmt.Errorf("%w: integrity failure at index %d", ErrChainBroken, i)
		}
		prev = e.EntryHash
	}
	return nil
}

// entryHash computes the canonical content hash of an entry, excluding the
// EntryHash field itself.
func entryHash(e Entry) (string, error) {
	e.EntryHash = ""
	return canonicalize.CanonicalHash(e)
}

func matches(e Entry, f Filter) bool {
	if f.Approved != nil && e.Decision.Approved != *f.Approved {
		return false
	}
	if f.Approver != "" && !approverMatches(e.Decision.Approver, f.Approver) {
		return false
	}
	if f.MinRisk != nil && !e.Validation.RiskLevel.AtLeast(*f.MinRisk) {
		return false
	}
	if f.After != nil && e.DecidedAt.Before(*f.After) {
		return false
	}
	if f.Before != nil && !e.DecidedAt.Before(*f.Before) {
		return false
	}
	return true
}

// approverMatches handles quorum decisions, where Approver is the
// comma-joined approver list in arrival order.
func approverMatches(recorded, want string) bool {
	if recorded == want {
		return true
	}
	for _, part := range strings.Split(recorded, ",") {
		if strings.TrimSpace(part) == want {
			return true
		}
	}
	return false
}
