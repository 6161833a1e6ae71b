package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/observability"
)

const slowRequestThreshold = 500 * time.Millisecond

// Observability counts and times requests whose path starts with one of prefixes (default /api)
// and emits one log line per request.
func Observability(logger zerolog.Logger, prefixes ...string) fiber.Handler {
	observability.RegisterMetrics()
	if len(prefixes) == 0 {
		prefixes = []string{"/api"}
	}

	return func(c *fiber.Ctx) error {
		if !hasAnyPrefix(c.Path(), prefixes) {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		// Route templates are resolved by c.Next.
		route := c.Path()
		if r := c.Route(); r != nil && r.Path != "" {
			route = r.Path
		}
		status := c.Response().StatusCode()
		code := strconv.Itoa(status)

		observability.HTTPRequests().WithLabelValues(c.Method(), route, code).Inc()
		observability.HTTPLatency().WithLabelValues(c.Method(), route).Observe(elapsed.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.HTTPErrors().WithLabelValues(c.Method(), route, code).Inc()
		}

		logger.WithLevel(requestLevel(status, elapsed)).
			Str("correlation_id", GetCorrelationID(c)).
			Str("method", c.Method()).
			Str("route", route).
			Int("status", status).
			Dur("latency", elapsed).
			Bool("slow", elapsed > slowRequestThreshold).
			Msg("request handled")

		return err
	}
}

func requestLevel(status int, elapsed time.Duration) zerolog.Level {
	switch {
	case status >= fiber.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= fiber.StatusBadRequest, elapsed > slowRequestThreshold:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix == "/" || strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
