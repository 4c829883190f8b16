package handlers

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

// RequireAuth enforces Bearer token authentication. An empty expected
// token disables auth entirely (development mode).
func RequireAuth(next http.Handler, expectedToken string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if expectedToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"unauthorized","code":"UNAUTHORIZED"}`,
				http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RateLimiter keeps one token bucket per client address. The LRU bound
// caps memory when clients churn; an evicted client simply starts with a
// fresh bucket.
type RateLimiter struct {
	limiters  *lru.Cache[string, *rate.Limiter]
	reqPerSec float64
	burst     int
}

// NewRateLimiter creates a per-client rate limiter. reqPerSec is the
// sustained rate and burst the bucket size for each client.
func NewRateLimiter(reqPerSec float64, burst int) *RateLimiter {
	cache, _ := lru.New[string, *rate.Limiter](1024)
	return &RateLimiter{
		limiters:  cache,
		reqPerSec: reqPerSec,
		burst:     burst,
	}
}

// Allow reports whether the client may proceed.
func (rl *RateLimiter) Allow(clientKey string) bool {
	limiter, ok := rl.limiters.Get(clientKey)
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(rl.reqPerSec), rl.burst)
		rl.limiters.Add(clientKey, limiter)
	}
	return limiter.Allow()
}

// RateLimitMiddleware enforces per-client rate limiting keyed by remote
// address.
func RateLimitMiddleware(next http.Handler, rl *RateLimiter) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientKey(r)) {
			w.Header().Set("Content-Type", "application/json")
			http.Error(w, `{"error":"rate limit exceeded","code":"RATE_LIMITED"}`,
				http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SecurityHeaders adds the standard security headers to every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}
