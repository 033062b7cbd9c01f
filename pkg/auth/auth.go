package auth

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/router"
)

// AdminSecretKey guards the debug message listing when set. Empty means the
// listing stays open, matching the default surface.
var AdminSecretKey string

func init() {
	AdminSecretKey = env.GetEnvStringOrDefault("ADMIN_SECRET", "")
}

// AdminAuth validates the X-Admin-Secret header
func AdminAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		adminSecret := c.Get("X-Admin-Secret")
		if adminSecret == "" {
			return router.ResponseUnauthorized(c, "Missing X-Admin-Secret header")
		}

		if AdminSecretKey == "" {
			return router.ResponseInternalError(c, "Admin secret key not configured")
		}

		if subtle.ConstantTimeCompare([]byte(adminSecret), []byte(AdminSecretKey)) != 1 {
			return router.ResponseUnauthorized(c, "Invalid admin secret")
		}

		return c.Next()
	}
}
