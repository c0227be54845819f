package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

func validation(risk contracts.RiskLevel) contracts.ValidationResult {
	return contracts.ValidationResult{
		StepID:    "step-1",
		Operation: "execute_sql",
		RiskLevel: risk,
	}
}

func decision(approved bool, approver string) contracts.ApprovalDecision {
	state := contracts.DecisionApproved
	reason := "auto"
	if !approved {
		state = contracts.DecisionRejected
		reason = "denied by " + approver
	}
	return contracts.ApprovalDecision{
		DecisionID: "dec-1",
		State:      state,
		Approved:   approved,
		Approver:   approver,
		Reason:     reason,
		DecidedAt:  time.Now(),
	}
}

func TestMemoryTrailAppendAndChain(t *testing.T) {
	trail := NewMemoryTrail()

	e1, err := trail.Record(validation(contracts.RiskLow), decision(true, "policy"))
	require.NoError(t, err)
	assert.Equal(t, "genesis", e1.PreviousHash)
	assert.NotEmpty(t, e1.EntryHash)

	e2, err := trail.Record(validation(contracts.RiskHigh), decision(false, "alice"))
	require.NoError(t, err)
	assert.Equal(t, e1.EntryHash, e2.PreviousHash)
	assert.Equal(t, uint64(2), e2.Sequence)

	require.NoError(t, trail.VerifyChain())
}

func TestMemoryTrailTamperDetection(t *testing.T) {
	trail := NewMemoryTrail()
	_, err := trail.Record(validation(contracts.RiskLow), decision(true, "policy"))
	require.NoError(t, err)
	_, err = trail.Record(validation(contracts.RiskHigh), decision(true, "alice"))
	require.NoError(t, err)

	trail.entries[0].Decision.Approved = false
	assert.ErrorIs(t, trail.VerifyChain(), ErrChainBroken)
}

func TestMemoryTrailQueryFilters(t *testing.T) {
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)
	tick := 0
	trail := NewMemoryTrail().WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	_, err := trail.Record(validation(contracts.RiskLow), decision(true, "policy"))
	require.NoError(t, err)
	_, err = trail.Record(validation(contracts.RiskHigh), decision(false, "alice"))
	require.NoError(t, err)
	_, err = trail.Record(validation(contracts.RiskCritical), decision(true, "alice, bob"))
	require.NoError(t, err)

	t.Run("no filter returns decision order", func(t *testing.T) {
		all, err := trail.Query(Filter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.True(t, all[0].Sequence < all[1].Sequence && all[1].Sequence < all[2].Sequence)
	})

	t.Run("by approved", func(t *testing.T) {
		rejected := false
		got, err := trail.Query(Filter{Approved: &rejected})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "alice", got[0].Decision.Approver)
	})

	t.Run("by approver including quorum lists", func(t *testing.T) {
		got, err := trail.Query(Filter{Approver: "bob"})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, contracts.RiskCritical, got[0].Validation.RiskLevel)

		got, err = trail.Query(Filter{Approver: "alice"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by minimum risk", func(t *testing.T) {
		min := contracts.RiskHigh
		got, err := trail.Query(Filter{MinRisk: &min})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("by time range", func(t *testing.T) {
		after := base.Add(90 * time.Second)
		before := base.Add(150 * time.Second)
		got, err := trail.Query(Filter{After: &after, Before: &before})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, uint64(2), got[0].Sequence)
	})
}

func TestMemoryTrailRecent(t *testing.T) {
	trail := NewMemoryTrail()
	for i := 0; i < 5; i++ {
		_, err := trail.Record(validation(contracts.RiskLow), decision(true, "policy"))
		require.NoError(t, err)
	}

	got, err := trail.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(4), got[0].Sequence)
	assert.Equal(t, uint64(5), got[1].Sequence)

	got, err = trail.Recent(100)
	require.NoError(t, err)
	assert.Len(t, got, 5)

	got, err = trail.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryTrailConcurrentAppends(t *testing.T) {
	trail := NewMemoryTrail()
	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := trail.Record(validation(contracts.RiskLow), decision(true, "policy"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, writers*perWriter, trail.Len())
	require.NoError(t, trail.VerifyChain(), "chain must stay linear under concurrent appends")
}
