package index

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/pkg/router"
)

func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "Apointly WhatsApp Service is running")
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "Service is healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
