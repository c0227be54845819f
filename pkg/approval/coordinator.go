package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/warden-labs/warden/core/pkg/audit"
	"github.com/warden-labs/warden/core/pkg/contracts"
)

// Coordinator resolves approval requests and records every outcome in the
// audit trail. An un-audited decision is never returned as valid: a trail
// write failure is a hard failure of RequestApproval.
type Coordinator struct {
	trail          audit.Trail
	approvers      []Approver
	interactive    ApproverStrategy
	defaultTimeout time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
	clock          func() time.Time

	// limiters throttles request creation per operation name; nil means
	// unlimited. Over-limit requests are rejected, not queued.
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithApprovers names the parties polled for multi-party requirements when
// the caller supplies no strategy.
func WithApprovers(approvers ...Approver) Option {
	return func(c *Coordinator) { c.approvers = approvers }
}

// WithInteractive overrides the fallback strategy used for single-party
// requirements when the caller supplies no strategy.
func WithInteractive(s ApproverStrategy) Option {
	return func(c *Coordinator) { c.interactive = s }
}

// WithDefaultTimeout sets the timeout applied when a request passes zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.defaultTimeout = d }
}

// WithLogger overrides the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithRateLimit throttles approval request creation per operation name.
// Requests over the limit are rejected immediately (fail closed).
func WithRateLimit(rps rate.Limit, burst int) Option {
	return func(c *Coordinator) {
		c.limiters = make(map[string]*rate.Limiter)
		c.rps = rps
		c.burst = burst
	}
}

// NewCoordinator builds a coordinator over the given audit trail.
// The trail is mandatory.
func NewCoordinator(trail audit.Trail, opts ...Option) *Coordinator {
	c := &Coordinator{
		trail:          trail,
		interactive:    InteractiveStrategy{In: os.Stdin, Out: os.Stderr},
		defaultTimeout: 5 * time.Minute,
		logger:         slog.Default(),
		tracer:         otel.Tracer("warden/approval"),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithClock overrides the clock for deterministic testing.
func (c *Coordinator) WithClock(clock func() time.Time) *Coordinator {
	c.clock = clock
	return c
}

// RequestApproval resolves the approval workflow for one validated step.
//
// It always terminates: approved, rejected, timed out, or cancelled. The
// returned decision is terminal and already recorded in the audit trail.
// The only error case is a failed trail write (audit.ErrWrite); every
// other failure mode resolves to a not-approved decision.
func (c *Coordinator) RequestApproval(
	ctx context.Context,
	step contracts.OperationStep,
	validation contracts.ValidationResult,
	strategy ApproverStrategy,
	timeout time.Duration,
) (contracts.ApprovalDecision, error) {
	ctx, span := c.tracer.Start(ctx, "approval.request",
		trace.WithAttributes(attribute.String("operation", step.Operation)))
	defer span.End()

	now := c.clock().UTC()

	// Uniform audit: steps that need no approval still produce a decision
	// and an entry, synthesized from policy.
	if !validation.RequiresApproval {
		decision := contracts.ApprovalDecision{
			DecisionID: uuid.New().String(),
			State:      contracts.DecisionApproved,
			Approved:   true,
			Approver:   contracts.ApproverPolicy,
			Reason:     "auto",
			DecidedAt:  now,
		}
		return c.finish(span, validation, decision)
	}

	if !c.allow(step.Operation) {
		decision := contracts.ApprovalDecision{
			DecisionID: uuid.New().String(),
			State:      contracts.DecisionRejected,
			Approved:   false,
			Approver:   contracts.ApproverPolicy,
			Reason:     fmt.Sprintf("approval request rate limit exceeded for %q", step.Operation),
			DecidedAt:  now,
		}
		return c.finish(span, validation, decision)
	}

	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	if strategy == nil {
		if validation.ApprovalRequirement.Kind == contracts.RequirementMultiParty {
			if len(c.approvers) == 0 {
				// A quorum nobody can answer is a misconfiguration, and
				// misconfiguration fails closed like everything else.
				decision := contracts.ApprovalDecision{
					DecisionID: uuid.New().String(),
					State:      contracts.DecisionRejected,
					Approved:   false,
					Approver:   contracts.ApproverPolicy,
					Reason:     "no approvers configured for multi-party approval, failing closed",
					DecidedAt:  now,
				}
				return c.finish(span, validation, decision)
			}
			strategy = QuorumStrategy{
				Approvers: c.approvers,
				Quorum:    validation.ApprovalRequirement.Quorum,
			}
		} else {
			strategy = c.interactive
		}
	}

	req := Request{
		RequestID:  uuid.New().String(),
		Step:       step,
		Validation: validation,
		CreatedAt:  now,
		ExpiresAt:  now.Add(timeout),
	}

	decision := c.resolve(ctx, req, strategy, timeout)
	return c.finish(span, validation, decision)
}

type strategyResult struct {
	decision contracts.ApprovalDecision
	err      error
}

// resolve runs the strategy under the request timeout and converts every
// failure mode into a terminal, not-approved decision.
func (c *Coordinator) resolve(
	ctx context.Context,
	req Request,
	strategy ApproverStrategy,
	timeout time.Duration,
) contracts.ApprovalDecision {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan strategyResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- strategyResult{err: fmt.Errorf("approver strategy panicked: %v", r)}
			}
		}()
		decision, err := strategy.Decide(runCtx, req)
		results <- strategyResult{decision: decision, err: err}
	}()

	var decision contracts.ApprovalDecision
	select {
	case res := <-results:
		switch {
		case res.err != nil && errors.Is(res.err, context.Canceled) && ctx.Err() != nil:
			decision = c.cancelled(req)
		case res.err != nil && errors.Is(res.err, context.DeadlineExceeded):
			decision = c.timedOut(req, timeout)
		case res.err != nil:
			// StrategyExecutionError: fail closed with the error as reason.
			decision = contracts.ApprovalDecision{
				State:    contracts.DecisionRejected,
				Approved: false,
				Approver: contracts.ApproverPolicy,
				Reason:   fmt.Sprintf("approver strategy failed: %v", res.err),
			}
		default:
			decision = res.decision
		}
	case <-runCtx.Done():
		if ctx.Err() != nil {
			decision = c.cancelled(req)
		} else {
			decision = c.timedOut(req, timeout)
		}
	}

	return c.normalize(decision)
}

func (c *Coordinator) cancelled(req Request) contracts.ApprovalDecision {
	return contracts.ApprovalDecision{
		State:    contracts.DecisionCancelled,
		Approved: false,
		Approver: contracts.ApproverRequester,
		Reason:   fmt.Sprintf("approval request %s cancelled by requester", req.RequestID),
	}
}

func (c *Coordinator) timedOut(req Request, timeout time.Duration) contracts.ApprovalDecision {
	return contracts.ApprovalDecision{
		State:    contracts.DecisionTimedOut,
		Approved: false,
		Approver: contracts.ApproverPolicy,
		Reason:   fmt.Sprintf("no decision within %s, failing closed", timeout),
	}
}

// normalize enforces the decision contract: terminal state, consistent
// Approved flag, non-empty reason on negative outcomes, ID and timestamp.
func (c *Coordinator) normalize(d contracts.ApprovalDecision) contracts.ApprovalDecision {
	if d.DecisionID == "" {
		d.DecisionID = uuid.New().String()
	}
	if d.DecidedAt.IsZero() {
		d.DecidedAt = c.clock().UTC()
	}
	if !d.State.Terminal() {
		d.State = contracts.DecisionRejected
	}
	if d.State == contracts.DecisionApproved && !d.Approved {
		// An inconsistent approval is no approval.
		d.State = contracts.DecisionRejected
	}
	d.Approved = d.State == contracts.DecisionApproved
	if !d.Approved && d.Reason == "" {
		d.Reason = "not approved"
	}
	return d
}

// finish records the decision; an audit failure invalidates the decision.
func (c *Coordinator) finish(
	span trace.Span,
	validation contracts.ValidationResult,
	decision contracts.ApprovalDecision,
) (contracts.ApprovalDecision, error) {
	if _, err := c.trail.Record(validation, decision); err != nil {
		span.SetAttributes(attribute.Bool("audit_failed", true))
		return contracts.ApprovalDecision{}, fmt.Errorf("record approval decision: %w", err)
	}

	span.SetAttributes(
		attribute.String("decision", string(decision.State)),
		attribute.Bool("approved", decision.Approved),
	)
	c.logger.Info("approval resolved",
		"operation", validation.Operation,
		"state", string(decision.State),
		"approver", decision.Approver,
	)
	return decision, nil
}

// allow checks the per-operation rate limiter.
func (c *Coordinator) allow(operation string) bool {
	if c.limiters == nil {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	limiter, ok := c.limiters[operation]
	if !ok {
		limiter = rate.NewLimiter(c.rps, c.burst)
		c.limiters[operation] = limiter
	}
	return limiter.Allow()
}
