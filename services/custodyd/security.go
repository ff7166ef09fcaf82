package main

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// sharedSecretMiddleware rejects requests that do not carry the configured
// shared secret header. Health and metrics endpoints stay open so probes and
// scrapers keep working.
func sharedSecretMiddleware(header, secret string) func(http.Handler) http.Handler {
	header = strings.TrimSpace(header)
	secret = strings.TrimSpace(secret)
	return func(next http.Handler) http.Handler {
		if header == "" || secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isOpenPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}
			provided := strings.TrimSpace(r.Header.Get(header))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isOpenPath(path string) bool {
	return path == "/healthz" || path == "/metrics"
}

// rateLimiter enforces a per-client-IP request budget.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	perMin   int
}

func newRateLimiter(perMin int) *rateLimiter {
	return &rateLimiter{
		limiters: make(map[string]*rate.Limiter),
		perMin:   perMin,
	}
}

func (rl *rateLimiter) limiterFor(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if limiter, ok := rl.limiters[key]; ok {
		return limiter
	}
	limiter := rate.NewLimiter(rate.Limit(float64(rl.perMin)/60.0), rl.perMin)
	rl.limiters[key] = limiter
	return limiter
}

// middleware wraps the next handler with the rate limit check. A zero budget
// disables limiting.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	if rl == nil || rl.perMin <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isOpenPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.limiterFor(host).Allow() {
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
