package httputil

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig controls the per-client request limiter.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	TrustProxy        bool
}

// clientLimiter tracks one client's limiter and its last use for pruning.
type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token-bucket limit per client IP. Idle clients are
// pruned so the map does not grow without bound.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	cfg     RateLimitConfig
}

// NewRateLimiter creates a limiter with the given config. Zero or negative
// rates disable limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	return &RateLimiter{
		clients: make(map[string]*clientLimiter),
		cfg:     cfg,
	}
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	if rl.cfg.RequestsPerSecond <= 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r, rl.cfg.TrustProxy)
		if !rl.allow(ip) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	cl, ok := rl.clients[ip]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst),
		}
		rl.clients[ip] = cl
	}
	cl.lastSeen = now

	if len(rl.clients) > 1024 {
		rl.pruneLocked(now)
	}

	return cl.limiter.Allow()
}

// pruneLocked drops clients idle for over ten minutes. Caller holds mu.
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for ip, cl := range rl.clients {
		if now.Sub(cl.lastSeen) > 10*time.Minute {
			delete(rl.clients, ip)
		}
	}
}
