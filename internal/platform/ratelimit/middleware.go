package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/vastra-market/api/internal/platform/httpx"
	"github.com/vastra-market/api/internal/platform/requestctx"
)

// KeyFunc derives the limiter key for a request, typically the caller's user id.
type KeyFunc func(r *http.Request) string

// Middleware rejects requests over the limit with 429. Limiter errors fail open.
func Middleware(limiter Limiter, keyFn KeyFunc, retryAfter time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			allowed, err := limiter.Allow(ctx, keyFn(r))
			if err != nil {
				requestctx.Logger(ctx).Warn("rate limiter unavailable; allowing request", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				if retryAfter > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())))
				}
				httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
