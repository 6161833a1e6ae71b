package handler

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/gema-roster-api/internal/utils"
)

// HealthResponse represents the payload returned by the health endpoint.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Environment string    `json:"environment"`
	Redis       bool      `json:"redis"`
	NATS        bool      `json:"nats"`
}

// HealthInfo describes the running service.
type HealthInfo struct {
	Service     string
	Environment string
	// Optional probes; nil means the dependency is not configured.
	Redis func() bool
	NATS  func() bool
}

// HealthCheck returns a handler that reports application health information.
func HealthCheck(info HealthInfo) fiber.Handler {
	return func(c *fiber.Ctx) error {
		payload := HealthResponse{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			Service:     info.Service,
			Environment: info.Environment,
		}
		if info.Redis != nil {
			payload.Redis = info.Redis()
		}
		if info.NATS != nil {
			payload.NATS = info.NATS()
		}

		return utils.SendSuccess(c, "service healthy", payload)
	}
}
