package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// ErrRequestExpired is returned when a pending request's TTL lapsed before
// a decision arrived. Expiry is the fail-closed path: an expired request
// can never be approved after the fact.
var ErrRequestExpired = errors.New("approval request expired")

// RedisRequestStore shares pending approval requests with out-of-process
// approvers through Redis. The engine publishes a request with TTL equal
// to the approval timeout; approvers resolve it; the engine polls.
type RedisRequestStore struct {
	client *redis.Client
}

// NewRedisRequestStore connects to Redis.
func NewRedisRequestStore(addr, password string, db int) *RedisRequestStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRequestStore{client: rdb}
}

// NewRedisRequestStoreWithClient wraps an existing client (tests).
func NewRedisRequestStoreWithClient(client *redis.Client) *RedisRequestStore {
	return &RedisRequestStore{client: client}
}

func requestKey(requestID string) string  { return "approval:request:" + requestID }
func decisionKey(requestID string) string { return "approval:decision:" + requestID }

// Publish stores the pending request with the given TTL.
func (s *RedisRequestStore) Publish(ctx context.Context, req Request, ttl time.Duration) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode approval request: %w", err)
	}
	if err := s.client.Set(ctx, requestKey(req.RequestID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("publish approval request: %w", err)
	}
	return nil
}

// Resolve records an approver's decision for a still-pending request.
// Resolving an expired or unknown request fails.
func (s *RedisRequestStore) Resolve(ctx context.Context, requestID string, decision contracts.ApprovalDecision) error {
	exists, err := s.client.Exists(ctx, requestKey(requestID)).Result()
	if err != nil {
		return fmt.Errorf("check approval request: %w", err)
	}
	if exists == 0 {
		return ErrRequestExpired
	}

	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("encode approval decision: %w", err)
	}
	ttl, err := s.client.TTL(ctx, requestKey(requestID)).Result()
	if err != nil || ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, decisionKey(requestID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("store approval decision: %w", err)
	}
	return nil
}

// Poll fetches the decision for a request, if one has arrived.
// The second return is false while the request is still pending; an
// expired request returns ErrRequestExpired.
func (s *RedisRequestStore) Poll(ctx context.Context, requestID string) (contracts.ApprovalDecision, bool, error) {
	var decision contracts.ApprovalDecision

	raw, err := s.client.Get(ctx, decisionKey(requestID)).Bytes()
	switch {
	case err == nil:
		if err := json.Unmarshal(raw, &decision); err != nil {
			return decision, false, fmt.Errorf("decode approval decision: %w", err)
		}
		return decision, true, nil
	case errors.Is(err, redis.Nil):
		// No decision yet; is the request still alive?
		exists, err := s.client.Exists(ctx, requestKey(requestID)).Result()
		if err != nil {
			return decision, false, fmt.Errorf("check approval request: %w", err)
		}
		if exists == 0 {
			return decision, false, ErrRequestExpired
		}
		return decision, false, nil
	default:
		return decision, false, fmt.Errorf("poll approval decision: %w", err)
	}
}

// RemoteStrategy resolves approvals through a RedisRequestStore: it
// publishes the request, then polls until a decision arrives, the request
// expires, or the context ends.
type RemoteStrategy struct {
	Store *RedisRequestStore

	// PollInterval defaults to one second.
	PollInterval time.Duration
}

// Decide implements ApproverStrategy.
func (s RemoteStrategy) Decide(ctx context.Context, req Request) (contracts.ApprovalDecision, error) {
	ttl := time.Until(req.ExpiresAt)
	if ttl <= 0 {
		return contracts.ApprovalDecision{}, ErrRequestExpired
	}
	if err := s.Store.Publish(ctx, req, ttl); err != nil {
		return contracts.ApprovalDecision{}, err
	}

	interval := s.PollInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return contracts.ApprovalDecision{}, ctx.Err()
		case <-ticker.C:
			decision, done, err := s.Store.Poll(ctx, req.RequestID)
			if err != nil {
				return contracts.ApprovalDecision{}, err
			}
			if done {
				return decision, nil
			}
		}
	}
}
