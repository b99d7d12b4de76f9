package middleware

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxClients caps tracked addresses; new clients beyond it are refused.
const maxClients = 100_000

type client struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket for the control plane.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	idle    time.Duration
	swept   time.Time
	now     func() time.Time
}

// NewRateLimiter allows perSecond sustained requests per client with the
// given burst. Clients idle for longer than idle are forgotten.
func NewRateLimiter(perSecond float64, burst int, idle time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Limit(perSecond),
		burst:   max(burst, 1),
		idle:    idle,
		now:     time.Now,
	}
}

// Handler rejects over-limit requests with 429 and a Retry-After header.
func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wait, ok := rl.reserve(clientIP(r))
		if !ok {
			w.Header().Set("Retry-After", fmt.Sprintf("%.0f", math.Max(1, math.Ceil(wait.Seconds()))))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// reserve takes one token for ip, or reports how long until one is free.
func (rl *RateLimiter) reserve(ip string) (time.Duration, bool) {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if rl.idle > 0 && now.Sub(rl.swept) >= rl.idle {
		for k, c := range rl.clients {
			if now.Sub(c.lastSeen) > rl.idle {
				delete(rl.clients, k)
			}
		}
		rl.swept = now
	}

	c, ok := rl.clients[ip]
	if !ok {
		if len(rl.clients) >= maxClients {
			return time.Second, false
		}
		c = &client{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	res := c.lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// Len reports how many clients are tracked.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// clientIP uses RemoteAddr only. Run chi's RealIP earlier in the chain when
// the server sits behind a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
