package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Allower is a keyed token bucket.
type Allower interface {
	Allow(key string, capacity, refillPerSec float64) bool
}

// RateLimitConfig limits requests per client IP.
type RateLimitConfig struct {
	Limiter      Allower
	Capacity     float64
	RefillPerSec float64
	// KeyFunc defaults to the client IP.
	KeyFunc func(c echo.Context) string
}

// RateLimit rejects requests over the bucket with 429.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c echo.Context) string { return c.RealIP() }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Method + " " + c.Path() + " " + cfg.KeyFunc(c)
			if !cfg.Limiter.Allow(key, cfg.Capacity, cfg.RefillPerSec) {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"status":  http.StatusTooManyRequests,
					"message": http.StatusText(http.StatusTooManyRequests),
					"data": []map[string]string{{
						"code":    "ERR_RATE_LIMIT",
						"message": "too many requests, slow down",
					}},
				})
			}
			return next(c)
		}
	}
}
