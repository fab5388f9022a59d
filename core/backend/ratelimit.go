package backend

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/relabs-tech/blog/core"
	"github.com/relabs-tech/blog/core/logger"
)

// maxLimiters bounds the number of clients tracked by the rate limiter
const maxLimiters = 10000

// rateLimiter limits requests per client IP
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*clientLimiter
	rate     rate.Limit
	burst    int
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(requestsPerSecond float64, burst int) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

func (rl *rateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, exists := rl.limiters[key]
	if !exists {
		if len(rl.limiters) >= maxLimiters {
			rl.cleanup(now)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

// cleanup drops clients idle for more than a minute. Must be called with mu held.
func (rl *rateLimiter) cleanup(now time.Time) {
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > time.Minute {
			delete(rl.limiters, key)
		}
	}
	if len(rl.limiters) >= maxLimiters {
		rl.limiters = make(map[string]*clientLimiter)
	}
}

func (rl *rateLimiter) handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			key = r.RemoteAddr
		}

		if !rl.getLimiter(key).Allow() {
			logger.FromContext(r.Context()).WithField("client", key).Warnln("rate limit exceeded for", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			core.WriteError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
