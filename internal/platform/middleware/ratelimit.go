package middleware

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/DNAi-inc/DNHealth-sub001/internal/platform/fhir"
)

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// maxTrackedClients bounds the limiter table; it is cleared when full.
const maxTrackedClients = 10000

type clientLimiters struct {
	mu      sync.Mutex
	cfg     RateLimitConfig
	clients map[string]*rate.Limiter
}

func (l *clientLimiters) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.clients[key]; ok {
		return lim
	}
	if len(l.clients) >= maxTrackedClients {
		l.clients = make(map[string]*rate.Limiter)
	}
	lim := rate.NewLimiter(rate.Limit(l.cfg.RequestsPerSecond), l.cfg.Burst)
	l.clients[key] = lim
	return lim
}

// RateLimit limits requests per client IP with a token bucket. A zero
// rate disables it. Rejected requests get a 429 with Retry-After.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	limiters := &clientLimiters{cfg: cfg, clients: make(map[string]*rate.Limiter)}
	limit := strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if cfg.RequestsPerSecond <= 0 {
			return next
		}
		return func(c echo.Context) error {
			c.Response().Header().Set("X-RateLimit-Limit", limit)

			now := time.Now()
			r := limiters.get(c.RealIP()).ReserveN(now, 1)
			if delay := r.DelayFrom(now); delay > 0 {
				r.CancelAt(now)
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
				return c.JSON(http.StatusTooManyRequests, fhir.NewOperationOutcome(
					fhir.IssueSeverityError, fhir.IssueTypeThrottled, "rate limit exceeded"))
			}
			return next(c)
		}
	}
}
