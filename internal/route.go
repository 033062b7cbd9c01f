package internal

import (
	"github.com/gofiber/fiber/v2"

	ctlAuth "github.com/apointly/whatsapp-service/internal/auth"
	ctlIndex "github.com/apointly/whatsapp-service/internal/index"
	ctlMessage "github.com/apointly/whatsapp-service/internal/message"
	"github.com/apointly/whatsapp-service/internal/storage"
	pkgAuth "github.com/apointly/whatsapp-service/pkg/auth"
	"github.com/apointly/whatsapp-service/pkg/router"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

func Routes(app *fiber.App, manager *whatsapp.Manager, store *storage.Store) {
	authController := ctlAuth.NewController(manager)
	messageController := ctlMessage.NewController(manager, store)

	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}

	app.Get(router.BaseURL+"/health", ctlIndex.Health)

	app.Post(router.BaseURL+"/auth/init", authController.InitConnection)
	app.Get(router.BaseURL+"/auth/status", authController.ConnectionStatus)
	app.Post(router.BaseURL+"/auth/logout", authController.Logout)

	app.Post(router.BaseURL+"/message/send", messageController.Send)
	app.Post(router.BaseURL+"/message/send-image", messageController.SendImage)

	if pkgAuth.AdminSecretKey != "" {
		app.Get(router.BaseURL+"/messages", pkgAuth.AdminAuth(), messageController.List)
	} else {
		app.Get(router.BaseURL+"/messages", messageController.List)
	}

	app.Use(func(c *fiber.Ctx) error {
		return router.ResponseNotFound(c, "route not found")
	})
}
