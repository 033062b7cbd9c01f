package router

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

func HttpErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := err.Error()

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}
	if code == fiber.StatusNotFound {
		message = "route not found"
	}

	response := Response{
		Success: false,
		Message: message,
		Error:   message,
	}
	if code >= http.StatusInternalServerError {
		// Operational detail stays in the server log only.
		logError(c, code, message)
		response.Message = "internal server error"
		response.Error = "internal server error"
		return c.Status(code).JSON(response)
	}

	logError(c, code, message)
	return c.Status(code).JSON(response)
}
