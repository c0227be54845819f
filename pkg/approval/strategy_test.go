package approval

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

func quorumRequest() Request {
	return Request{
		RequestID: "req-1",
		Step:      testStep(),
		Validation: contracts.ValidationResult{
			Operation: "execute_sql",
			RiskLevel: contracts.RiskCritical,
			Risks:     []string{"operation is potentially irreversible"},
		},
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(time.Minute),
	}
}

func TestQuorumStrategyReachesQuorum(t *testing.T) {
	s := QuorumStrategy{
		Approvers: []Approver{yes("alice"), yes("bob"), yes("carol")},
		Quorum:    2,
	}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Equal(t, "alice, bob", decision.Approver, "quorum stops at two, carol is never polled")
	assert.Equal(t, "approved by alice, bob", decision.Reason)
}

func TestQuorumStrategyZeroQuorumMeansAll(t *testing.T) {
	s := QuorumStrategy{Approvers: []Approver{yes("alice"), yes("bob")}}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Equal(t, "alice, bob", decision.Approver)
}

func TestQuorumStrategyRejectionNamesUnpolled(t *testing.T) {
	s := QuorumStrategy{
		Approvers: []Approver{yes("alice"), no("bob", "out of hours"), yes("carol")},
		Quorum:    3,
	}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	assert.Equal(t, "bob", decision.Approver)
	assert.Equal(t, "rejected by bob: out of hours (not polled: carol)", decision.Reason)
}

func TestQuorumStrategyInsufficientApprovers(t *testing.T) {
	s := QuorumStrategy{Approvers: []Approver{yes("alice")}, Quorum: 2}

	_, err := s.Decide(context.Background(), quorumRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quorum 2 exceeds available approvers 1")
}

func TestQuorumStrategyApproverErrorFailsClosed(t *testing.T) {
	broken := ApproverFunc{Name: "pager", Fn: func(context.Context, Request) (bool, string, error) {
		return false, "", errors.New("page delivery failed")
	}}
	s := QuorumStrategy{Approvers: []Approver{broken, yes("bob")}, Quorum: 2}

	_, err := s.Decide(context.Background(), quorumRequest())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `approver "pager"`)
}

func TestQuorumStrategyCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := QuorumStrategy{Approvers: []Approver{yes("alice")}, Quorum: 1}
	_, err := s.Decide(ctx, quorumRequest())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInteractiveStrategyApprove(t *testing.T) {
	var out strings.Builder
	s := InteractiveStrategy{In: strings.NewReader("yes\n"), Out: &out}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.True(t, decision.Approved)
	assert.Equal(t, "operator", decision.Approver)
	assert.Contains(t, out.String(), "risk CRITICAL")
	assert.Contains(t, out.String(), "operation is potentially irreversible")
}

func TestInteractiveStrategyRejectWithReason(t *testing.T) {
	var out strings.Builder
	s := InteractiveStrategy{In: strings.NewReader("n\nwrong environment\n"), Out: &out, ApproverID: "dba"}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.False(t, decision.Approved)
	assert.Equal(t, contracts.DecisionRejected, decision.State)
	assert.Equal(t, "dba", decision.Approver)
	assert.Equal(t, "wrong environment", decision.Reason)
}

func TestInteractiveStrategyEmptyAnswerRejects(t *testing.T) {
	var out strings.Builder
	s := InteractiveStrategy{In: strings.NewReader("\n\n"), Out: &out}

	decision, err := s.Decide(context.Background(), quorumRequest())
	require.NoError(t, err)

	assert.False(t, decision.Approved, "default answer is no")
	assert.Equal(t, "interactively rejected", decision.Reason)
}

func TestInteractiveStrategyHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// In blocks forever; only cancellation can end the call.
	blockIn, _ := io.Pipe()
	var out strings.Builder
	s := InteractiveStrategy{In: blockIn, Out: &out}

	_, err := s.Decide(ctx, quorumRequest())
	assert.ErrorIs(t, err, context.Canceled)
}
