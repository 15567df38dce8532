package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"biogy.com/biogyapi/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	ScopeGlobal     = "global"
	ScopeTopic      = "topic"
	ScopeDiscussion = "discussion"
	ScopePost       = "post"
	ScopeComment    = "comment"
)

// RateLimitError carries the remaining cooldown so handlers can set Retry-After.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return apperror.ErrRateLimitExceeded
}

// Limiter applies per-user cooldowns. A nil redis client disables limiting.
type Limiter struct {
	rdb    *redis.Client
	global time.Duration
	scopes map[string]time.Duration
}

func New(rdb *redis.Client, global time.Duration, scopes map[string]time.Duration) *Limiter {
	return &Limiter{rdb: rdb, global: global, scopes: scopes}
}

func key(userID uuid.UUID, scope string) string {
	return fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), scope)
}

// Acquire checks the global cooldown and then the scope cooldown. On success it
// returns a release func that clears both keys, for callers whose operation
// fails after the check.
func (l *Limiter) Acquire(ctx context.Context, userID uuid.UUID, scope string) (func(), error) {
	noop := func() {}
	if l == nil || l.rdb == nil {
		return noop, nil
	}

	if l.global > 0 {
		ok, err := l.rdb.SetNX(ctx, key(userID, ScopeGlobal), "locked", l.global).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !ok {
			ttl, _ := l.rdb.TTL(ctx, key(userID, ScopeGlobal)).Result()
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("you are doing that too fast. Please wait %.0f seconds", ttl.Seconds()),
				RetryAfter: ttl,
			}
		}
	}

	limit := l.scopes[scope]
	if limit > 0 {
		ok, err := l.rdb.SetNX(ctx, key(userID, scope), "locked", limit).Result()
		if err != nil {
			l.clear(ctx, userID, ScopeGlobal)
			return nil, fmt.Errorf("failed to check rate limit: %w", err)
		}
		if !ok {
			l.clear(ctx, userID, ScopeGlobal)
			ttl, _ := l.rdb.TTL(ctx, key(userID, scope)).Result()
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("you can only create one %s every %s. Please wait %.0f seconds", scope, limit, ttl.Seconds()),
				RetryAfter: ttl,
			}
		}
	}

	return func() {
		l.clear(ctx, userID, ScopeGlobal)
		l.clear(ctx, userID, scope)
	}, nil
}

func (l *Limiter) clear(ctx context.Context, userID uuid.UUID, scope string) {
	_ = l.rdb.Del(ctx, key(userID, scope)).Err()
}
