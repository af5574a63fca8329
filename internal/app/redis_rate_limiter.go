package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var checkoutRateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return current
`)

// RedisCheckoutRateLimiter implements distributed fixed-window rate limiting
// for checkout initiation using Redis.
type RedisCheckoutRateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisCheckoutRateLimiter(client redis.UniversalClient, prefix string) *RedisCheckoutRateLimiter {
	trimmedPrefix := strings.TrimSpace(prefix)
	if trimmedPrefix == "" {
		trimmedPrefix = "collabry:rate_limit"
	}
	trimmedPrefix = strings.TrimSuffix(trimmedPrefix, ":")

	return &RedisCheckoutRateLimiter{
		client: client,
		prefix: trimmedPrefix,
	}
}

// Consume increments the window counter for scope:subject and returns the
// count after the increment. The caller compares it against its limit.
func (r *RedisCheckoutRateLimiter) Consume(ctx context.Context, scope, subject string, window time.Duration) (int64, error) {
	if r == nil || r.client == nil {
		return 0, nil
	}

	normalizedScope := strings.TrimSpace(scope)
	normalizedSubject := strings.TrimSpace(subject)
	if normalizedScope == "" || normalizedSubject == "" {
		return 0, nil
	}

	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	key := fmt.Sprintf("%s:%s:%s", r.prefix, normalizedScope, normalizedSubject)
	rawResult, err := checkoutRateLimitScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, err
	}

	count, ok := rawResult.(int64)
	if !ok {
		return 0, fmt.Errorf("unexpected redis limiter response type: %T", rawResult)
	}
	return count, nil
}
