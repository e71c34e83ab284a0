package middleware

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	sl "github.com/tajious/portalauth/internal/lib/logger/sl"
	"github.com/tajious/portalauth/internal/ratelimit"
)

// RateLimiter throttles whole routes per client IP. It sits in front of the
// per-action limits the auth service applies.
type RateLimiter struct {
	limiter ratelimit.Limiter
	enabled bool
	log     *slog.Logger
}

type RateLimitConfig struct {
	Enabled bool
	Action  string
	Limit   int
	Window  time.Duration
}

func NewRateLimiter(limiter ratelimit.Limiter, enabled bool, log *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		enabled: enabled,
		log:     log,
	}
}

func (r *RateLimiter) RateLimit(config RateLimitConfig) fiber.Handler {
	rule := ratelimit.Rule{Max: config.Limit, Window: config.Window}
	action := "route:" + config.Action

	return func(c *fiber.Ctx) error {
		if !r.enabled || !config.Enabled {
			return c.Next()
		}

		ip := c.IP()
		if ip == "" {
			ip = c.Context().RemoteIP().String()
		}

		err := ratelimit.Enforce(c.Context(), r.limiter, ratelimit.Key(action, ip), rule)
		if err == nil {
			return c.Next()
		}

		var limited *ratelimit.LimitedError
		if errors.As(err, &limited) {
			return TooManyRequests(c, limited.RetryAfter)
		}

		// The per-action limits downstream still apply.
		r.log.Warn("route rate limiter unavailable", slog.String("action", config.Action), sl.Err(err))
		return c.Next()
	}
}

// TooManyRequests writes a 429 with a Retry-After header.
func TooManyRequests(c *fiber.Ctx, retryAfter int) error {
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"error":       "Too many requests",
		"retry_after": retryAfter,
	})
}
