package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mir00r/telemetry-demo/internal/domain"
	apperrors "github.com/mir00r/telemetry-demo/internal/errors"
	"github.com/mir00r/telemetry-demo/pkg/logger"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	maxTrackedClients = 10000
)

// RateLimiter manages per-client token buckets
type RateLimiter struct {
	limiters map[string]*clientLimiter
	mu       sync.Mutex
	rate     rate.Limit
	burst    int
	rejected int64
	now      func() time.Time
	logger   *logger.Logger
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(config domain.RateLimitConfig, logger *logger.Logger) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		rate:     rate.Limit(config.RequestsPerSecond),
		burst:    config.BurstSize,
		now:      time.Now,
		logger:   logger.MiddlewareLogger("rate_limiter"),
	}
}

// allow reports whether ip may proceed, creating its limiter on first sight
func (rl *RateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if len(rl.limiters) >= maxTrackedClients {
		rl.evictIdle(now)
	}

	cl, exists := rl.limiters[ip]
	if !exists {
		cl = &clientLimiter{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[ip] = cl
	}
	cl.lastSeen = now

	if !cl.limiter.AllowN(now, 1) {
		rl.rejected++
		return false
	}
	return true
}

// evictIdle drops limiters not used within limiterIdleTTL; caller holds mu
func (rl *RateLimiter) evictIdle(now time.Time) {
	removed := 0
	for ip, cl := range rl.limiters {
		if now.Sub(cl.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, ip)
			removed++
		}
	}
	if removed > 0 {
		rl.logger.WithField("removed", removed).Info("Cleaned up idle rate limiters")
	}
}

// RateLimitMiddleware provides rate limiting functionality
func (rl *RateLimiter) RateLimitMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%.2f", float64(rl.rate)))

			if !rl.allow(clientIP) {
				err := apperrors.NewError(apperrors.ErrCodeRateLimitExceeded, "rate_limiter", "Rate limit exceeded").
					WithRequestID(GetRequestID(r.Context()))

				rl.logger.WithFields(map[string]interface{}{
					"client_ip":  clientIP,
					"path":       r.URL.Path,
					"method":     r.Method,
					"error_code": err.Code,
				}).Warn("Rate limit exceeded")

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", "1")

				http.Error(w, err.Message, err.HTTPStatusCode())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP address from the request
func getClientIP(r *http.Request) string {
	// Take the first hop of X-Forwarded-For
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"rate_limit":     float64(rl.rate),
		"burst_size":     rl.burst,
		"active_clients": len(rl.limiters),
		"rejected":       rl.rejected,
	}
}
