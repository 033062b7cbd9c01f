package message

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/internal/storage"
	"github.com/apointly/whatsapp-service/internal/types"
	"github.com/apointly/whatsapp-service/pkg/log"
	"github.com/apointly/whatsapp-service/pkg/router"
	"github.com/apointly/whatsapp-service/pkg/validation"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

// Controller serves the message endpoints.
type Controller struct {
	manager *whatsapp.Manager
	store   *storage.Store
}

func NewController(manager *whatsapp.Manager, store *storage.Store) *Controller {
	return &Controller{manager: manager, store: store}
}

// Send delivers a plain text message through an authenticated session.
func (ctl *Controller) Send(c *fiber.Ctx) error {
	var req types.RequestSendMessage
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "invalid request body")
	}

	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.Number) == "" {
		return router.ResponseBadRequest(c, "number is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return router.ResponseBadRequest(c, "message is required")
	}
	if err := validation.ValidatePhone(req.Number); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	msg, err := ctl.manager.SendMessage(c.UserContext(), req.SessionID, req.Number, req.Message)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotConnected) {
			return router.ResponseBadRequest(c, "WhatsApp is not connected or authenticated")
		}
		log.SessionOp(req.SessionID, "send").WithError(err).Error("Send failed")
		return router.ResponseBadRequest(c, "Failed to send message")
	}

	return router.ResponseSuccessWithData(c, "Message sent successfully", types.DataSendMessage{
		MessageID: msg.ID,
	})
}

// SendImage delivers an uploaded image with an optional caption. The payload
// arrives as multipart form data with the image under the "image" field.
func (ctl *Controller) SendImage(c *fiber.Ctx) error {
	sessionID := c.FormValue("sessionId")
	number := c.FormValue("number")
	caption := c.FormValue("caption")

	if err := validation.ValidateSessionID(sessionID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if strings.TrimSpace(number) == "" {
		return router.ResponseBadRequest(c, "number is required")
	}
	if err := validation.ValidatePhone(number); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		return router.ResponseBadRequest(c, "image file is required")
	}

	file, err := fileHeader.Open()
	if err != nil {
		return router.ResponseBadRequest(c, "failed to open uploaded image")
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		return router.ResponseBadRequest(c, "failed to read uploaded image")
	}

	imageType := fileHeader.Header.Get("Content-Type")
	if !strings.HasPrefix(imageType, "image/") {
		return router.ResponseBadRequest(c, "uploaded file must be an image")
	}

	msg, err := ctl.manager.SendImage(c.UserContext(), sessionID, number, imageBytes, imageType, caption)
	if err != nil {
		if errors.Is(err, whatsapp.ErrNotConnected) {
			return router.ResponseBadRequest(c, "WhatsApp is not connected or authenticated")
		}
		log.SessionOp(sessionID, "send-image").WithError(err).Error("Send failed")
		return router.ResponseBadRequest(c, "Failed to send image")
	}

	return router.ResponseSuccessWithData(c, "Image sent successfully", types.DataSendMessage{
		MessageID: msg.ID,
	})
}

// List returns every stored message in insertion order.
func (ctl *Controller) List(c *fiber.Ctx) error {
	messages := ctl.store.GetAllMessages()
	return router.ResponseSuccessWithData(c, "Messages retrieved successfully", types.DataMessages{
		Messages: messages,
		Total:    len(messages),
	})
}
