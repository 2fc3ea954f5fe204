package middleware

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/kestrelvaluation/securechat/internal/metrics"
	"github.com/kestrelvaluation/securechat/internal/store"
)

// RateLimiter caps message sends per user per minute. It rides on the
// authenticated identity, so it must run after RequireAuth.
type RateLimiter struct {
	redis  *store.RedisStore
	limit  int
	logger zerolog.Logger
}

// NewRateLimiter creates a limiter allowing limit sends per minute.
func NewRateLimiter(redis *store.RedisStore, limit int, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{redis: redis, limit: limit, logger: logger}
}

// Middleware enforces the limit. With no Redis configured the limiter is
// a pass-through.
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.redis == nil {
			next.ServeHTTP(w, r)
			return
		}

		identity := IdentityFromContext(r.Context())
		if identity == nil {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		allowed, err := l.redis.CheckRateLimit(r.Context(), identity.UserID, l.limit)
		if err != nil {
			// Availability over enforcement on limiter failure.
			l.logger.Warn().Err(err).Msg("rate limit check failed")
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			metrics.RateLimitHits.WithLabelValues(r.URL.Path).Inc()
			w.Header().Set("Retry-After", "60")
			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if err := l.redis.IncrementRateLimit(r.Context(), identity.UserID); err != nil {
			l.logger.Warn().Err(err).Msg("rate limit increment failed")
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.limit))
		next.ServeHTTP(w, r)
	})
}
