package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func newLimiterContext(userID, path string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("POST", path, nil)
	if userID != "" {
		c.Set(ContextUserIDKey, userID)
	}
	return c
}

func TestRateLimiterHandle_BlocksWithinWindow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	now := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now: func() time.Time {
			return now
		},
	}

	c1 := newLimiterContext("alice", "/api/v1/chats/c1/messages")
	limiter.handle(c1)
	require.False(t, c1.IsAborted())

	c2 := newLimiterContext("alice", "/api/v1/chats/c1/messages")
	limiter.handle(c2)
	require.True(t, c2.IsAborted())

	// another chat and another user are separate buckets
	c3 := newLimiterContext("alice", "/api/v1/chats/c2/messages")
	limiter.handle(c3)
	require.False(t, c3.IsAborted())
	c4 := newLimiterContext("bob", "/api/v1/chats/c1/messages")
	limiter.handle(c4)
	require.False(t, c4.IsAborted())

	now = now.Add(11 * time.Second)
	c5 := newLimiterContext("alice", "/api/v1/chats/c1/messages")
	limiter.handle(c5)
	require.False(t, c5.IsAborted())
}

func TestRateLimiterCleanupExpiredLocked_RemovesExpiredEntries(t *testing.T) {
	base := time.Now()
	limiter := &rateLimiter{
		window:        10 * time.Second,
		last:          make(map[string]time.Time),
		sweepInterval: 10 * time.Second,
		now:           time.Now,
	}
	limiter.last["expired"] = base.Add(-20 * time.Second)
	limiter.last["active"] = base.Add(-2 * time.Second)

	limiter.mu.Lock()
	limiter.cleanupExpiredLocked(base)
	limiter.mu.Unlock()

	require.NotContains(t, limiter.last, "expired")
	require.Contains(t, limiter.last, "active")
	require.False(t, limiter.lastSweep.IsZero())
}

func TestRateLimit_DisabledPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := RateLimit(0)
	for i := 0; i < 3; i++ {
		c := newLimiterContext("alice", "/x")
		h(c)
		require.False(t, c.IsAborted())
	}
}
