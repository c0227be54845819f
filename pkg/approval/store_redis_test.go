package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRemoteStrategyRejectsAlreadyExpiredRequest(t *testing.T) {
	s := RemoteStrategy{Store: NewRedisRequestStore("localhost:6379", "", 0)}

	req := quorumRequest()
	req.ExpiresAt = time.Now().UTC().Add(-time.Second)

	_, err := s.Decide(context.Background(), req)
	assert.ErrorIs(t, err, ErrRequestExpired, "expiry is checked before any round trip")
}

func TestRequestKeys(t *testing.T) {
	assert.Equal(t, "approval:request:req-1", requestKey("req-1"))
	assert.Equal(t, "approval:decision:req-1", decisionKey("req-1"))
}
