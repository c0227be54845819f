// Package approval turns validation verdicts into concrete approval
// workflows: interactive prompts, programmatic callbacks, signed remote
// decisions, or multi-party quorums, all bounded by timeouts and
// cancellable by the caller.
//
// Every outcome is fail-closed: timeouts, strategy errors, and ambiguity
// all resolve to a not-approved decision, never to silence and never to an
// implicit approval.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// Request is the full approval request handed to strategies.
type Request struct {
	RequestID  string                     `json:"request_id"`
	Step       contracts.OperationStep    `json:"step"`
	Validation contracts.ValidationResult `json:"validation"`
	CreatedAt  time.Time                  `json:"created_at"`
	ExpiresAt  time.Time                  `json:"expires_at"`
}

// ApproverStrategy resolves an approval request to a decision.
//
// The coordinator enforces the request timeout around Decide; a strategy
// that returns an error (or panics) is converted into a rejection with the
// error message as the reason.
type ApproverStrategy interface {
	Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error)
}

// StrategyFunc adapts a function to an ApproverStrategy.
type StrategyFunc func(ctx context.Context, req Request) (contracts.ApprovalDecision, error)

// Decide implements ApproverStrategy.
func (f StrategyFunc) Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error) {
	return f(ctx, req)
}

// Approver is one named party that can answer a quorum poll.
type Approver interface {
	// ID identifies the approver in decisions and audit entries.
	ID() string

	// Respond answers one request: approved or not, with an optional
	// free-text reason. An error fails closed.
	Respond(ctx context.Context, req Request) (bool, string, error)
}

// ApproverFunc adapts a function to an Approver.
type ApproverFunc struct {
	Name string
	Fn   func(ctx context.Context, req Request) (bool, string, error)
}

func (a ApproverFunc) ID() string { return a.Name }

func (a ApproverFunc) Respond(ctx context.Context, req Request) (bool, string, error) {
	return a.Fn(ctx, req)
}

// QuorumStrategy polls named approvers in sequence until the quorum is
// reached or any approver rejects. Sequential polling keeps the recorded
// approver order deterministic; the outcome never depends on order beyond
// "any rejection wins".
type QuorumStrategy struct {
	Approvers []Approver

	// Quorum is the number of distinct approvals required. Zero means
	// all listed approvers.
	Quorum int
}

// Decide implements ApproverStrategy.
func (s QuorumStrategy) Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error) {
	quorum := s.Quorum
	if quorum <= 0 {
		quorum = len(s.Approvers)
	}
	if len(s.Approvers) < quorum {
		return contracts.ApprovalDecision{}, fmt.Errorf(
			"quorum %d exceeds available approvers %d", quorum, len(s.Approvers))
	}

	var approved []string
	for i, approver := range s.Approvers {
		if err := ctx.Err(); err != nil {
			return contracts.ApprovalDecision{}, err
		}

		yes, reason, err := approver.Respond(ctx, req)
		if err != nil {
			return contracts.ApprovalDecision{}, fmt.Errorf("approver %q: %w", approver.ID(), err)
		}
		if !yes {
			// First rejection wins; remaining approvers are not polled.
			notPolled := approverIDs(s.Approvers[i+1:])
			r := fmt.Sprintf("rejected by %s", approver.ID())
			if reason != "" {
				r += ": " + reason
			}
			if len(notPolled) > 0 {
				r += fmt.Sprintf(" (not polled: %s)", strings.Join(notPolled, ", "))
			}
			return contracts.ApprovalDecision{
				State:    contracts.DecisionRejected,
				Approved: false,
				Approver: approver.ID(),
				Reason:   r,
			}, nil
		}

		approved = append(approved, approver.ID())
		if len(approved) >= quorum {
			break
		}
	}

	return contracts.ApprovalDecision{
		State:    contracts.DecisionApproved,
		Approved: true,
		Approver: strings.Join(approved, ", "),
		Reason:   fmt.Sprintf("approved by %s", strings.Join(approved, ", ")),
	}, nil
}

func approverIDs(approvers []Approver) []string {
	ids := make([]string, len(approvers))
	for i, a := range approvers {
		ids[i] = a.ID()
	}
	return ids
}

// InteractiveStrategy blocks on a single yes/no confirmation read from In,
// with the prompt written to Out. A negative answer may be followed by a
// free-text rejection reason.
type InteractiveStrategy struct {
	In  io.Reader
	Out io.Writer

	// ApproverID is recorded on the decision; defaults to "operator".
	ApproverID string
}

type promptAnswer struct {
	approved bool
	reason   string
	err      error
}

// Decide implements ApproverStrategy. The blocking read runs in its own
// goroutine so cancellation and timeout are honored even while waiting on
// an idle terminal.
func (s InteractiveStrategy) Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error) {
	approver := s.ApproverID
	if approver == "" {
		approver = "operator"
	}

	fmt.Fprintf(s.Out, "Approval required for %s (risk %s)\n",
		req.Step.Operation, req.Validation.RiskLevel)
	for _, risk := range req.Validation.Risks {
		fmt.Fprintf(s.Out, "  risk: %s\n", risk)
	}
	fmt.Fprintf(s.Out, "Approve? [y/N]: ")

	answers := make(chan promptAnswer, 1)
	go func() {
		reader := bufio.NewReader(s.In)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			answers <- promptAnswer{err: err}
			return
		}
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "y" || answer == "yes" {
			answers <- promptAnswer{approved: true}
			return
		}
		fmt.Fprintf(s.Out, "Rejection reason (optional): ")
		reason, _ := reader.ReadString('\n')
		answers <- promptAnswer{approved: false, reason: strings.TrimSpace(reason)}
	}()

	select {
	case <-ctx.Done():
		return contracts.ApprovalDecision{}, ctx.Err()
	case a := <-answers:
		if a.err != nil {
			return contracts.ApprovalDecision{}, fmt.Errorf("read confirmation: %w", a.err)
		}
		if a.approved {
			return contracts.ApprovalDecision{
				State:    contracts.DecisionApproved,
				Approved: true,
				Approver: approver,
				Reason:   "interactively approved",
			}, nil
		}
		reason := a.reason
		if reason == "" {
			reason = "interactively rejected"
		}
		return contracts.ApprovalDecision{
			State:    contracts.DecisionRejected,
			Approved: false,
			Approver: approver,
			Reason:   reason,
		}, nil
	}
}
