package ratelimiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"biogy.com/biogyapi/pkg/apperror"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_NilRedisAllowsEverything(t *testing.T) {
	l := New(nil, time.Second, map[string]time.Duration{ScopeTopic: time.Minute})

	for i := 0; i < 3; i++ {
		release, err := l.Acquire(context.Background(), uuid.New(), ScopeTopic)
		require.NoError(t, err)
		release()
	}

	var nilLimiter *Limiter
	_, err := nilLimiter.Acquire(context.Background(), uuid.New(), ScopeTopic)
	assert.NoError(t, err)
}

func TestRateLimitError_Unwraps(t *testing.T) {
	err := &RateLimitError{Message: "slow down", RetryAfter: 3 * time.Second}

	assert.True(t, errors.Is(err, apperror.ErrRateLimitExceeded))
	assert.Equal(t, "slow down", err.Error())
}

func newRedisLimiter(t *testing.T, scopes map[string]time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, 5*time.Second, scopes), mr
}

func TestLimiter_GlobalCooldown(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, nil)
	user := uuid.New()

	_, err := l.Acquire(ctx, user, ScopeDiscussion)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, user, ScopeDiscussion)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.True(t, errors.Is(err, apperror.ErrRateLimitExceeded))
	assert.Greater(t, rle.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, rle.RetryAfter, 5*time.Second)

	// Other users are unaffected.
	_, err = l.Acquire(ctx, uuid.New(), ScopeDiscussion)
	assert.NoError(t, err)

	mr.FastForward(6 * time.Second)
	_, err = l.Acquire(ctx, user, ScopeDiscussion)
	assert.NoError(t, err)
}

func TestLimiter_ScopeCooldownReleasesGlobal(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, map[string]time.Duration{ScopeTopic: time.Minute})
	user := uuid.New()

	_, err := l.Acquire(ctx, user, ScopeTopic)
	require.NoError(t, err)
	mr.FastForward(6 * time.Second)

	_, err = l.Acquire(ctx, user, ScopeTopic)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Greater(t, rle.RetryAfter, 5*time.Second)
	assert.LessOrEqual(t, rle.RetryAfter, time.Minute)

	// A rejected scope does not hold the global cooldown.
	assert.False(t, mr.Exists(key(user, ScopeGlobal)))
	_, err = l.Acquire(ctx, user, ScopeDiscussion)
	assert.NoError(t, err)
}

func TestLimiter_ReleaseClearsKeys(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, map[string]time.Duration{ScopePost: time.Minute})
	user := uuid.New()

	release, err := l.Acquire(ctx, user, ScopePost)
	require.NoError(t, err)
	assert.True(t, mr.Exists(key(user, ScopeGlobal)))
	assert.True(t, mr.Exists(key(user, ScopePost)))

	release()
	assert.False(t, mr.Exists(key(user, ScopeGlobal)))
	assert.False(t, mr.Exists(key(user, ScopePost)))

	_, err = l.Acquire(ctx, user, ScopePost)
	assert.NoError(t, err)
}

func TestLimiter_RedisErrorIsNotRateLimit(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLimiter(t, nil)
	mr.SetError("boom")

	_, err := l.Acquire(ctx, uuid.New(), ScopeComment)
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperror.ErrRateLimitExceeded))
}
