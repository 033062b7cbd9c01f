package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/internal/types"
	"github.com/apointly/whatsapp-service/pkg/log"
	"github.com/apointly/whatsapp-service/pkg/router"
	"github.com/apointly/whatsapp-service/pkg/validation"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

// Controller serves the session lifecycle endpoints.
type Controller struct {
	manager *whatsapp.Manager
}

func NewController(manager *whatsapp.Manager) *Controller {
	return &Controller{manager: manager}
}

// InitConnection creates or re-creates the session's client and kicks off
// the connection in the background. The response reflects the state at the
// time of the call; the QR payload is picked up through status polling.
func (ctl *Controller) InitConnection(c *fiber.Ctx) error {
	var req types.RequestInitAuth
	if err := c.BodyParser(&req); err != nil && err != fiber.ErrUnprocessableEntity {
		return router.ResponseBadRequest(c, "invalid request body")
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("sessionId")
	}

	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if strings.TrimSpace(req.WebhookURL) != "" {
		if err := validation.ValidateWebhookURL(req.WebhookURL); err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
	}

	log.SessionOp(req.SessionID, "init").Info("Initializing connection")

	status, err := ctl.manager.InitializeConnection(c.UserContext(), req.SessionID, strings.TrimSpace(req.WebhookURL))
	if err != nil {
		log.SessionOp(req.SessionID, "init").WithError(err).Error("Initialization failed")
		return router.ResponseInternalError(c, "Failed to initialize connection")
	}

	return router.ResponseSuccessWithData(c, "Connection initialized successfully", types.DataAuthInit{
		Success:         true,
		IsAuthenticated: status.IsAuthenticated,
		QRCode:          status.QRCode,
	})
}

// ConnectionStatus reports the authentication flag and any pending QR code.
func (ctl *Controller) ConnectionStatus(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		var req types.RequestSessionID
		if err := c.BodyParser(&req); err == nil {
			sessionID = req.SessionID
		}
	}

	if err := validation.ValidateSessionID(sessionID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	status, err := ctl.manager.GetConnectionStatus(sessionID)
	if err != nil {
		return router.ResponseNotFound(c, "No session found")
	}

	return router.ResponseSuccessWithData(c, "Status retrieved successfully", types.DataConnectionStatus{
		IsAuthenticated: status.IsAuthenticated,
		QRCode:          status.QRCode,
	})
}

// Logout tears down the live connection but keeps the session record so the
// client can be re-initialized later.
func (ctl *Controller) Logout(c *fiber.Ctx) error {
	var req types.RequestSessionID
	if err := c.BodyParser(&req); err != nil && err != fiber.ErrUnprocessableEntity {
		return router.ResponseBadRequest(c, "invalid request body")
	}
	if req.SessionID == "" {
		req.SessionID = c.Query("sessionId")
	}

	if err := validation.ValidateSessionID(req.SessionID); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	ctl.manager.Disconnect(req.SessionID)
	return router.ResponseSuccess(c, "Disconnected successfully")
}
