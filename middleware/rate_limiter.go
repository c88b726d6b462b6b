package middleware

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL       = 10 * time.Minute
	limiterSweepInterval = time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type rateLimiterStore struct {
	limiters  map[string]*limiterEntry
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newRateLimiterStore(limit rate.Limit, burst int) *rateLimiterStore {
	return &rateLimiterStore{
		limiters: make(map[string]*limiterEntry),
		limit:    limit,
		burst:    burst,
		idleTTL:  limiterIdleTTL,
		now:      time.Now,
	}
}

func (s *rateLimiterStore) getLimiter(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= limiterSweepInterval {
		s.sweep(now)
	}

	entry, exists := s.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep drops clients idle longer than idleTTL. A dropped client starts again
// with a full bucket, which is what an idle limiter would hold anyway once
// idleTTL exceeds the refill time. Callers hold mu.
func (s *rateLimiterStore) sweep(now time.Time) {
	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > s.idleTTL {
			delete(s.limiters, key)
		}
	}
	s.lastSweep = now
}

// RateLimit allows perMinute requests per client IP, with a burst of a tenth
// of that. Each call gets its own store so route groups are limited
// independently.
func RateLimit(perMinute int, logger *zap.Logger) fiber.Handler {
	if perMinute < 1 {
		perMinute = 1
	}
	burst := perMinute / 10
	if burst < 1 {
		burst = 1
	}
	store := newRateLimiterStore(rate.Every(time.Minute/time.Duration(perMinute)), burst)

	return func(c *fiber.Ctx) error {
		ip := c.IP()
		if !store.getLimiter(ip).Allow() {
			logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("path", c.Path()))
			return deny(c, fiber.StatusTooManyRequests, "rate_limited", "Rate limit exceeded. Try again later.")
		}
		return c.Next()
	}
}
