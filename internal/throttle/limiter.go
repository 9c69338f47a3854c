// Package throttle rate-limits login attempts per client IP using Redis.
package throttle

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// LoginLimiter counts login attempts per IP in a fixed window. Redis being
// unavailable fails open: authentication still works, only the throttle is lost.
type LoginLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewLoginLimiter returns a limiter allowing limit attempts per window per IP.
// client may be nil; then every attempt is allowed.
func NewLoginLimiter(client *redis.Client, limit int, window time.Duration) *LoginLimiter {
	return &LoginLimiter{client: client, limit: limit, window: window}
}

// Allow reports whether another login attempt from ip is permitted.
func (l *LoginLimiter) Allow(ctx context.Context, ip string) (bool, error) {
	if l == nil || l.client == nil || l.limit <= 0 || ip == "" {
		return true, nil
	}
	key := "authcore:login:" + ip
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		log.Printf("throttle: redis incr failed, allowing: %v", err)
		return true, nil
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			log.Printf("throttle: redis expire failed: %v", err)
		}
	}
	return count <= int64(l.limit), nil
}
