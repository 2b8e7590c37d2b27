package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL = 10 * time.Minute
	sweepInterval  = time.Minute
	// defaultMaxClients bounds the limiter map. Clients beyond it share
	// one overflow bucket until idle entries are swept.
	defaultMaxClients = 10000
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter throttles requests per client IP. It guards the credential
// endpoints against password guessing.
type RateLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*clientLimiter
	overflow   *rate.Limiter
	rate       rate.Limit
	burst      int
	maxClients int
	lastSweep  time.Time
	now        func() time.Time
}

// NewRateLimiter allows requestsPerSecond sustained with the given burst.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters:   make(map[string]*clientLimiter),
		overflow:   rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		rate:       rate.Limit(requestsPerSecond),
		burst:      burst,
		maxClients: defaultMaxClients,
		now:        time.Now,
	}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Sub(rl.lastSweep) >= sweepInterval {
		rl.evictIdle(now)
		rl.lastSweep = now
	}

	cl, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= rl.maxClients {
			return rl.overflow.AllowN(now, 1)
		}
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter.AllowN(now, 1)
}

// Handler rejects requests over the limit with 429.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(clientIP(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// evictIdle drops limiters unused for limiterIdleTTL. Caller holds mu.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

// clientIP strips the port from RemoteAddr. RealIP runs first and only
// rewrites RemoteAddr for requests arriving through a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
