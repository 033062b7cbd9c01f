package router

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/pkg/log"
)

// RecoveryMiddleware converts panics into structured JSON responses.
// The panic detail is logged server-side only; callers get a generic message.
// It must be registered before application routes.
func RecoveryMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Print(c).WithField("request_id", c.Locals("request_id")).Error("panic recovered: " + fmt.Sprintf("%v", rec))
				resp := Response{
					Success: false,
					Message: "internal server error",
					Error:   "internal server error",
				}
				_ = c.Status(fiber.StatusInternalServerError).JSON(resp)
			}
		}()
		return c.Next()
	}
}
