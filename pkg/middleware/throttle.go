package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/platinummonkey/scorecard/pkg/httputil"
	"github.com/platinummonkey/scorecard/pkg/observability"
)

// MsgTooManyAttempts is the body of a throttled login
const MsgTooManyAttempts = "Too many login attempts, please try again later"

// KeyFunc derives the rate limit key from a request
type KeyFunc func(r *http.Request) string

// ClientIPKey keys requests by client address
func ClientIPKey(r *http.Request) string {
	return "ip:" + httputil.ClientIP(r)
}

// Throttle rejects requests once limiter reports the key exhausted. A
// limiter error lets the request through. onReject may be nil.
func Throttle(limiter Limiter, key KeyFunc, message string, onReject func(r *http.Request)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := limiter.Allow(r.Context(), key(r))
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Warn("rate limiter unavailable, allowing request")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			if !decision.Allowed {
				retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				if onReject != nil {
					onReject(r)
				}
				httputil.WriteTooManyRequests(w, message)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// LoginThrottle limits login attempts per client address and counts the
// rejections as throttled logins
func LoginThrottle(limiter Limiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return Throttle(limiter, ClientIPKey, MsgTooManyAttempts, func(r *http.Request) {
		metrics.RecordLogin("throttled")
		observability.FromContext(r.Context()).
			WithField("client_ip", httputil.ClientIP(r)).
			Warn("login throttled")
	})
}
