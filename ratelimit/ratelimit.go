// Package ratelimit provides a Redis-backed fixed-window limiter keyed by client IP.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/auth"
	"github.com/user/memories-go/config"
)

const keyPrefix = "memories:ratelimit:"

// NewClient creates a Redis client from cfg. It returns nil when rate limiting is disabled.
func NewClient(cfg *config.RateLimitConfig) *redis.Client {
	if cfg == nil || !cfg.Enabled() {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

// Middleware allows maxRequests per window for each client IP.
// With a nil client it passes every request through unchanged.
// Run it after chi's RealIP middleware so RemoteAddr holds the client address.
func Middleware(client *redis.Client, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if client == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key := keyPrefix + clientIP(r)

			// INCR and PTTL travel in one round trip; the window starts with the first hit.
			pipe := client.Pipeline()
			incr := pipe.Incr(ctx, key)
			ttl := pipe.PTTL(ctx, key)
			if _, err := pipe.Exec(ctx); err != nil {
				logrus.WithError(err).Error("rate limit pipeline failed")
				auth.WriteError(w, r, apperror.NewInternalError("Rate limiting error", err))
				return
			}
			count := incr.Val()
			remaining := ttl.Val()
			if remaining < 0 {
				if err := client.PExpire(ctx, key, window).Err(); err != nil {
					logrus.WithError(err).Warn("failed to set rate limit window")
				}
				remaining = window
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(maxRequests))
			if count > int64(maxRequests) {
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(int((remaining+time.Second-1)/time.Second)))
				auth.WriteError(w, r, apperror.NewTooManyRequestsError("Too many requests", nil))
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(maxRequests)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
