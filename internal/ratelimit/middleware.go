package ratelimit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/promptguard/gateway/internal/auth"
	"github.com/promptguard/gateway/internal/httputil"
	"github.com/promptguard/gateway/internal/telemetry"
)

const (
	defaultRPM = 60

	headerRateLimitRequests          = "X-RateLimit-Limit-Requests"
	headerRateLimitRemainingRequests = "X-RateLimit-Remaining-Requests"
	headerRateLimitReset             = "X-RateLimit-Reset-Requests"
	headerRetryAfter                 = "Retry-After"
)

// Middleware returns chi middleware that enforces per-client rate limits and
// the daily request quota.
func Middleware(limiter *Limiter, quota *QuotaTracker, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				// No identity — let request pass (auth middleware will catch it)
				next.ServeHTTP(w, r)
				return
			}

			rpm := id.RPMLimit
			if rpm <= 0 {
				rpm = defaultRPM
			}

			rpmKey := fmt.Sprintf("rpm:%s", id.ClientID)
			result, _ := limiter.Check(r.Context(), rpmKey, int64(rpm), time.Minute)

			// Always set rate limit headers
			w.Header().Set(headerRateLimitRequests, strconv.Itoa(rpm))
			w.Header().Set(headerRateLimitRemainingRequests, strconv.FormatInt(result.Remaining, 10))
			w.Header().Set(headerRateLimitReset, result.ResetAt.Format(time.RFC3339))

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"client_id", id.ClientID,
					"dimension", "rpm",
					"limit", rpm,
				)
				if metrics != nil {
					metrics.RecordRateLimitHit("rpm", id.ClientID)
				}
				w.Header().Set(headerRetryAfter, strconv.Itoa(int(result.RetryAfter.Seconds())))
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests per minute. Retry after %s", rpm, result.ResetAt.Format(time.RFC3339)))
				return
			}

			if id.DailyQuota > 0 {
				quotaResult, _ := quota.CheckDaily(r.Context(), id.ClientID, int64(id.DailyQuota))
				if !quotaResult.Allowed {
					slog.Warn("daily quota exceeded",
						"request_id", reqID,
						"client_id", id.ClientID,
						"used", quotaResult.Used,
						"limit", quotaResult.Limit,
					)
					if metrics != nil {
						metrics.RecordRateLimitHit("quota", id.ClientID)
					}
					httputil.WriteQuotaExceededError(w, reqID,
						fmt.Sprintf("Daily quota exceeded: %d of %d requests used", quotaResult.Used, quotaResult.Limit))
					return
				}
				if err := quota.Record(r.Context(), id.ClientID, 1); err != nil {
					slog.Debug("quota record failed", "client_id", id.ClientID, "error", err)
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
