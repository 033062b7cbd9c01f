package internal

import (
	"github.com/robfig/cron/v3"

	"go.mau.fi/whatsmeow"

	"github.com/apointly/whatsapp-service/internal/storage"
	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/log"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

// Routines registers the background jobs and starts the scheduler.
func Routines(c *cron.Cron, manager *whatsapp.Manager, store *storage.Store) {
	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		// Reconcile stored authentication flags with the live sockets.
		_, err := c.AddFunc("0 */5 * * * *", func() {
			manager.RangeClients(func(sessionID string, client *whatsmeow.Client) {
				healthy := client.IsConnected() && client.IsLoggedIn()
				sess, ok := store.GetSessionByID(sessionID)
				if !ok || sess.IsAuthenticated == healthy {
					return
				}
				log.SessionOp(sessionID, "health-check").WithField("healthy", healthy).Warn("Session state drifted, reconciling")
				store.UpdateSession(sessionID, storage.SessionUpdate{IsAuthenticated: &healthy})
			})
		})
		if err != nil {
			log.Session("routines").WithError(err).Error("Failed to register health check job")
		}
	}

	c.Start()
}
