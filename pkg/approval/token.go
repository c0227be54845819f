package approval

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// DecisionClaims is the JWT payload a remote approver signs to answer an
// approval request out of band (chat, email, paging responses all reduce
// to a signed token handed back to the engine).
type DecisionClaims struct {
	jwt.RegisteredClaims

	// RequestID binds the token to one approval request; a token for a
	// different request is rejected.
	RequestID string `json:"request_id"`

	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`

	// Conditions are obligations the approver attaches to an approval.
	Conditions []string `json:"conditions,omitempty"`
}

// TokenFetcher obtains the signed decision token for a request, typically
// by delivering a notification and waiting for the reply. It must respect
// the context; the coordinator's timeout applies around the whole exchange.
type TokenFetcher func(ctx context.Context, req Request) (string, error)

// TokenStrategy resolves approvals from HMAC-signed decision tokens.
// Any verification failure fails closed: bad signature, expired token,
// wrong request binding, or a missing subject all reject.
type TokenStrategy struct {
	secret []byte
	fetch  TokenFetcher
}

// NewTokenStrategy builds a strategy verifying tokens with the shared
// HMAC secret.
func NewTokenStrategy(secret []byte, fetch TokenFetcher) *TokenStrategy {
	return &TokenStrategy{secret: secret, fetch: fetch}
}

// Decide implements ApproverStrategy.
func (s *TokenStrategy) Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error) {
	tokenString, err := s.fetch(ctx, req)
	if err != nil {
		return contracts.ApprovalDecision{}, fmt.Errorf("fetch decision token: %w", err)
	}

	claims, err := s.verify(tokenString, req.RequestID)
	if err != nil {
		return contracts.ApprovalDecision{}, err
	}

	if claims.Approved {
		return contracts.ApprovalDecision{
			State:      contracts.DecisionApproved,
			Approved:   true,
			Approver:   claims.Subject,
			Reason:     nonEmpty(claims.Reason, "approved via signed token"),
			Conditions: claims.Conditions,
		}, nil
	}
	return contracts.ApprovalDecision{
		State:    contracts.DecisionRejected,
		Approved: false,
		Approver: claims.Subject,
		Reason:   nonEmpty(claims.Reason, fmt.Sprintf("rejected by %s", claims.Subject)),
	}, nil
}

func (s *TokenStrategy) verify(tokenString, requestID string) (*DecisionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DecisionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("verify decision token: %w", err)
	}

	claims, ok := token.Claims.(*DecisionClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.RequestID != requestID {
		return nil, fmt.Errorf("token bound to request %q, want %q", claims.RequestID, requestID)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("decision token has no approver subject")
	}
	return claims, nil
}

// SignDecision produces a decision token. Approver-side helper, also used
// by tests and the notification bridge.
func SignDecision(secret []byte, approver, requestID string, approved bool, reason string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := DecisionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   approver,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		RequestID: requestID,
		Approved:  approved,
		Reason:    reason,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
