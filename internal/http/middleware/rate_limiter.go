package middleware

import (
	"net/http"
	"strconv"
	"sync"

	"asset-pipeline/internal/auth"

	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"
)

const (
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRetryAfter    = "Retry-After"

	errRateLimited = "rate limit exceeded"
)

// RateLimiter implements token bucket rate limiting per key.
type RateLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	rate     rate.Limit
	burst    int
	key      func(echo.Context) string
}

// NewRateLimiter limits by client IP.
func NewRateLimiter(requestsPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		rate:  rate.Limit(requestsPerSecond),
		burst: burst,
		key:   ipKey,
	}
}

// NewActorRateLimiter limits by authenticated actor. It must run after the
// auth middleware of its group; requests without an actor fall back to IP.
func NewActorRateLimiter(requestsPerSecond int, burst int) *RateLimiter {
	rl := NewRateLimiter(requestsPerSecond, burst)
	rl.key = ActorKey
	return rl
}

func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	if limiter, ok := rl.limiters.Load(key); ok {
		return limiter.(*rate.Limiter)
	}
	limiter, _ := rl.limiters.LoadOrStore(key, rate.NewLimiter(rl.rate, rl.burst))
	return limiter.(*rate.Limiter)
}

// Allow checks if a request should be allowed for the given key
func (rl *RateLimiter) Allow(key string) bool {
	return rl.getLimiter(key).Allow()
}

func (rl *RateLimiter) Middleware() echo.MiddlewareFunc {
	limit := strconv.Itoa(rl.burst)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			limiter := rl.getLimiter(rl.key(c))
			header := c.Response().Header()
			header.Set(headerRateLimit, limit)

			if !limiter.Allow() {
				header.Set(headerRateRemaining, "0")
				header.Set(headerRetryAfter, "1")
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": errRateLimited,
				})
			}

			header.Set(headerRateRemaining, strconv.Itoa(int(limiter.Tokens())))
			return next(c)
		}
	}
}

func ipKey(c echo.Context) string {
	return "ip:" + c.RealIP()
}

// ActorKey buckets admins and users by id, workers by token scope, and
// everyone else by IP.
func ActorKey(c echo.Context) string {
	switch auth.GetActorType(c) {
	case auth.ActorAdmin, auth.ActorUser:
		if userID, err := auth.GetUserID(c); err == nil {
			return "user:" + userID.String()
		}
	case auth.ActorWorker:
		if scope, ok := c.Get(auth.ContextKeyScope).(string); ok && scope != "" {
			return "worker:" + scope
		}
	}
	return ipKey(c)
}

// NewGlobalRateLimiter is the lenient per-IP limiter in front of every route.
func NewGlobalRateLimiter() *RateLimiter {
	return NewRateLimiter(100, 200)
}
