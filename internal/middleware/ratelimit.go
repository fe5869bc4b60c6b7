package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
	"github.com/redis/go-redis/v9"

	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/pkg/clientip"
)

const (
	// RateLimitKeyPrefix is the Redis key prefix for rate limiting
	RateLimitKeyPrefix = "ratelimit:"
	// BlockedIPKeyPrefix is the Redis key prefix for blocked IPs
	BlockedIPKeyPrefix = "blocked_ip:"
)

// RedisRateLimitConfig configures the shared fixed-window limiter.
type RedisRateLimitConfig struct {
	Window      time.Duration
	MaxRequests int
	// BlockFor is how long an IP stays blocked after exceeding the window.
	BlockFor time.Duration
}

// DefaultRedisRateLimit allows 300 requests per 2 minutes and blocks
// offenders for 15 minutes.
func DefaultRedisRateLimit() RedisRateLimitConfig {
	return RedisRateLimitConfig{Window: 2 * time.Minute, MaxRequests: 300, BlockFor: 15 * time.Minute}
}

// RedisRateLimit counts requests per IP in Redis so the limit holds across
// instances. When Redis fails the request is let through.
func RedisRateLimit(client *redis.Client, cfg RedisRateLimitConfig) func(http.Handler) http.Handler {
	log := logger.WithComponent("ratelimit")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := clientip.RealClientIP(r)

			blockedKey := BlockedIPKeyPrefix + ip
			blocked, err := client.Exists(ctx, blockedKey).Result()
			if err == nil && blocked > 0 {
				writeError(w, http.StatusTooManyRequests, "Your IP has been temporarily blocked due to excessive requests. Please try again later.", "RATE_LIMITED")
				return
			}

			key := RateLimitKeyPrefix + ip
			pipe := client.TxPipeline()
			incr := pipe.Incr(ctx, key)
			pipe.ExpireNX(ctx, key, cfg.Window)
			if _, err := pipe.Exec(ctx); err != nil {
				log.Warn().Err(err).Msg("rate limit counter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			count := int(incr.Val())

			if count > cfg.MaxRequests {
				if err := client.Set(ctx, blockedKey, "1", cfg.BlockFor).Err(); err != nil {
					log.Warn().Err(err).Str("ip", ip).Msg("block ip")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(cfg.BlockFor.Seconds())))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Your IP has been temporarily blocked. Please try again later.", "RATE_LIMITED")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(cfg.MaxRequests-count))
			next.ServeHTTP(w, r)
		})
	}
}

// UploadRateLimit caps upload requests per client IP with a sliding window.
func UploadRateLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		perMinute = 10
	}
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(clientip.Key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(time.Minute.Seconds())))
			writeError(w, http.StatusTooManyRequests, "Too many uploads. Please try again in a minute.", "RATE_LIMITED")
		}),
	)
}
