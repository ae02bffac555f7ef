package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitMiddleware provides token bucket rate limiting per client IP
type RateLimitMiddleware struct {
	trustProxy bool
	now        func() time.Time
}

// NewRateLimitMiddleware creates a new rate limiting middleware. Forwarding
// headers are only used to identify the client when trustProxy is set, that
// is when the server sits behind a proxy that overwrites them.
func NewRateLimitMiddleware(trustProxy bool) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		trustProxy: trustProxy,
		now:        time.Now,
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitors holds the buckets of one RateLimit chain.
type visitors struct {
	mu        sync.Mutex
	byIP      map[string]*visitor
	lastSweep time.Time
}

func newVisitors() *visitors {
	return &visitors{byIP: make(map[string]*visitor)}
}

// RateLimit allows bursts of up to maxRequests per client IP, refilled
// evenly over window.
func (m *RateLimitMiddleware) RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return m.limit(newVisitors(), maxRequests, window)
}

func (m *RateLimitMiddleware) limit(set *visitors, maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	if maxRequests < 1 {
		maxRequests = 1
	}
	every := rate.Every(window / time.Duration(maxRequests))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r, m.trustProxy)
			now := m.now()

			set.mu.Lock()
			set.sweep(now, window)
			v, ok := set.byIP[ip]
			if !ok {
				v = &visitor{limiter: rate.NewLimiter(every, maxRequests)}
				set.byIP[ip] = v
			}
			v.lastSeen = now
			allowed := v.limiter.AllowN(now, 1)
			var retry time.Duration
			if !allowed {
				res := v.limiter.ReserveN(now, 1)
				retry = res.DelayFrom(now)
				res.CancelAt(now)
			}
			set.mu.Unlock()

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())+1))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// sweep drops visitors idle for a whole window; their buckets would be full
// again anyway. Callers hold s.mu.
func (s *visitors) sweep(now time.Time, window time.Duration) {
	if now.Sub(s.lastSweep) < window {
		return
	}
	s.lastSweep = now
	for ip, v := range s.byIP {
		if now.Sub(v.lastSeen) >= window {
			delete(s.byIP, ip)
		}
	}
}

func (s *visitors) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byIP)
}

// clientIP extracts the client IP from the request. X-Forwarded-For and
// X-Real-IP are client-controlled unless a trusted proxy sets them.
func clientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
			return strings.TrimSpace(strings.Split(ip, ",")[0])
		}
		if ip := r.Header.Get("X-Real-IP"); ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
