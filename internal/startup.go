package internal

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/log"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

const restoreConcurrency = 4

// Startup prepares the credential directory and optionally restores every
// previously paired session found on disk. Restoration is opt-in because it
// reconnects real WhatsApp accounts as a side effect of a process restart.
func Startup(manager *whatsapp.Manager) {
	if err := manager.EnsureAuthDir(); err != nil {
		log.Session("startup").WithError(err).Error("Failed to create credential directory")
		return
	}

	if !env.GetEnvBoolOrDefault("WHATSAPP_RESTORE_SESSIONS_ON_STARTUP", false) {
		return
	}

	entries, err := os.ReadDir(manager.AuthDir())
	if err != nil {
		log.Session("startup").WithError(err).Error("Failed to scan credential directory")
		return
	}

	var sessionIDs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".db") {
			continue
		}
		sessionIDs = append(sessionIDs, strings.TrimSuffix(filepath.Base(name), ".db"))
	}
	if len(sessionIDs) == 0 {
		return
	}

	log.Session("startup").WithField("count", len(sessionIDs)).Info("Restoring sessions from disk")

	var restored, failed atomic.Int32
	var wg sync.WaitGroup
	sem := make(chan struct{}, restoreConcurrency)

	for _, sessionID := range sessionIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(sessionID string) {
			defer wg.Done()
			defer func() { <-sem }()

			// Stagger connects so the restore burst does not look like a flood.
			time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)

			if _, err := manager.InitializeConnection(context.Background(), sessionID, ""); err != nil {
				log.Session(sessionID).WithError(err).Warn("Failed to restore session")
				failed.Add(1)
				return
			}
			restored.Add(1)
		}(sessionID)
	}
	wg.Wait()

	log.Session("startup").WithFields(logrus.Fields{
		"restored": restored.Load(),
		"failed":   failed.Load(),
	}).Info("Session restore finished")
}
