// File: internal/formserver/ratelimit.go
package formserver

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterIdleTTL is how long an unused client bucket is kept.
const limiterIdleTTL = 5 * time.Minute

// Bucket classes. Submission polling gets its own bucket so a client that
// polls many sessions cannot exhaust the budget for its own submits.
const (
	classAPI  = "api"
	classPoll = "poll"
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per client address and class.
type limiterSet struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	clients   map[string]*clientLimiter
	lastSweep time.Time
	now       func() time.Time
}

func newLimiterSet(limit float64, burst int) *limiterSet {
	return &limiterSet{
		limit:   rate.Limit(limit),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) > limiterIdleTTL {
		for k, c := range s.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	c, ok := s.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter
}

// clientAddr is the request's remote host. middleware.RealIP has already
// replaced RemoteAddr when a proxy header was present.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestClass(r *http.Request) string {
	if r.Method == http.MethodGet && strings.Contains(r.URL.Path, "/submission/") {
		return classPoll
	}
	return classAPI
}

// RateLimit throttles requests with a token bucket per client address and
// request class. A non-positive limit disables throttling.
func (h *Handlers) RateLimit(limit float64, burst int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		limiters := newLimiterSet(limit, burst)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.get(clientAddr(r) + "|" + requestClass(r)).Allow() {
				w.Header().Set("Retry-After", "1")
				h.respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
