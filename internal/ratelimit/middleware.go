package ratelimit

import (
	"net"
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is sent in Retry-After on a 429.
const DefaultRetryAfterSeconds = 1

// ClientAddr keys requests by remote IP, ignoring the port.
func ClientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware rejects requests over the client's budget with 429 Too Many
// Requests, Retry-After and X-RateLimit-Remaining headers.
func Middleware(limiter *RateLimiter, clientKey func(r *http.Request) string) func(http.Handler) http.Handler {
	if clientKey == nil {
		clientKey = ClientAddr
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := limiter.GetLimiter(clientKey(r))
			if !l.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"too many requests"}`))
				return
			}

			remaining := int(l.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			next.ServeHTTP(w, r)
		})
	}
}
