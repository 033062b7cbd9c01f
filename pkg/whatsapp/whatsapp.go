package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal"
	qrCode "github.com/skip2/go-qrcode"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/apointly/whatsapp-service/internal/storage"
	"github.com/apointly/whatsapp-service/internal/webhook"
	"github.com/apointly/whatsapp-service/pkg/env"
	"github.com/apointly/whatsapp-service/pkg/log"
)

var (
	ErrSessionNotFound = errors.New("whatsapp session not found")
	ErrNotConnected    = errors.New("whatsapp client is not connected or authenticated")
)

const (
	defaultReconnectDelay = 3 * time.Second
	qrChannelWaitTimeout  = 2 * time.Minute
	qrImageSize           = 256
)

// ConnectionStatus is the caller-visible snapshot of one session.
type ConnectionStatus struct {
	IsAuthenticated bool
	QRCode          string
}

// Manager owns the live whatsmeow client for each session identifier and
// keeps the store's session records synchronized with connection events.
// Credentials live in one sqlite container file per session under authDir.
type Manager struct {
	store           *storage.Store
	engine          *webhook.Engine
	authDir         string
	reconnectDelay  time.Duration
	printQRTerminal bool
	sendRate        rate.Limit

	mu              sync.Mutex
	clients         map[string]*whatsmeow.Client
	containers      map[string]*sqlstore.Container
	reconnectTimers map[string]*time.Timer
	limiters        map[string]*rate.Limiter

	initGroup singleflight.Group
}

func NewManager(store *storage.Store, engine *webhook.Engine) *Manager {
	sendRate := rate.Inf
	if perMinute := env.GetEnvIntOrDefault("WHATSAPP_SEND_RATE_PER_MINUTE", 0); perMinute > 0 {
		sendRate = rate.Every(time.Minute / time.Duration(perMinute))
	}

	return &Manager{
		store:           store,
		engine:          engine,
		authDir:         env.GetEnvStringOrDefault("WHATSAPP_AUTH_DIR", "./auth_store"),
		reconnectDelay:  env.GetEnvDurationOrDefault("WHATSAPP_RECONNECT_DELAY", defaultReconnectDelay),
		printQRTerminal: env.GetEnvBoolOrDefault("WHATSAPP_QR_PRINT_TERMINAL", false),
		sendRate:        sendRate,
		clients:         make(map[string]*whatsmeow.Client),
		containers:      make(map[string]*sqlstore.Container),
		reconnectTimers: make(map[string]*time.Timer),
		limiters:        make(map[string]*rate.Limiter),
	}
}

func (m *Manager) Store() *storage.Store {
	return m.store
}

func (m *Manager) AuthDir() string {
	return m.authDir
}

// EnsureAuthDir creates the credential-storage directory if missing.
func (m *Manager) EnsureAuthDir() error {
	return os.MkdirAll(m.authDir, 0o755)
}

// InitializeConnection creates or replaces the client for the session and
// starts connecting in the background. It returns immediately with the
// session's current state; the QR payload appears asynchronously once the
// pairing event fires. Concurrent calls for the same identifier are
// deduplicated.
func (m *Manager) InitializeConnection(ctx context.Context, sessionID string, webhookURL string) (ConnectionStatus, error) {
	result, err, _ := m.initGroup.Do(sessionID, func() (interface{}, error) {
		return m.initialize(ctx, sessionID, webhookURL)
	})
	if err != nil {
		return ConnectionStatus{}, err
	}
	return result.(ConnectionStatus), nil
}

func (m *Manager) initialize(ctx context.Context, sessionID string, webhookURL string) (ConnectionStatus, error) {
	m.store.GetOrCreateSession(sessionID, webhookURL)

	// A newer init supersedes any pending reconnect and the prior handle.
	m.cancelReconnect(sessionID)

	m.mu.Lock()
	if prev := m.clients[sessionID]; prev != nil {
		prev.Disconnect()
		delete(m.clients, sessionID)
	}
	m.mu.Unlock()

	container, err := m.containerFor(ctx, sessionID)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("open credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return ConnectionStatus{}, fmt.Errorf("load device credentials: %w", err)
	}

	client := whatsmeow.NewClient(device, nil)
	client.EnableAutoReconnect = false // reconnection is driven by the manager
	client.AutoTrustIdentity = true
	client.AddEventHandler(m.handleEvents(sessionID, webhookURL, client))

	m.mu.Lock()
	m.clients[sessionID] = client
	m.mu.Unlock()

	go m.connect(sessionID, webhookURL, client)

	sess, _ := m.store.GetSessionByID(sessionID)
	return ConnectionStatus{IsAuthenticated: sess.IsAuthenticated, QRCode: sess.QRCode}, nil
}

func (m *Manager) containerFor(ctx context.Context, sessionID string) (*sqlstore.Container, error) {
	m.mu.Lock()
	container, ok := m.containers[sessionID]
	m.mu.Unlock()
	if ok {
		return container, nil
	}

	if err := m.EnsureAuthDir(); err != nil {
		return nil, err
	}

	dsn := "file:" + filepath.Join(m.authDir, sessionID+".db") + "?_foreign_keys=on"
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.containers[sessionID] = container
	m.mu.Unlock()
	return container, nil
}

func (m *Manager) connect(sessionID string, webhookURL string, client *whatsmeow.Client) {
	if client.Store.ID != nil {
		if err := client.Connect(); err != nil {
			log.Session(sessionID).WithError(err).Warn("Failed to connect, scheduling retry")
			m.scheduleReconnect(sessionID, webhookURL)
		}
		return
	}

	// Unpaired device: consume the QR channel until pairing resolves.
	qrCtx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)
	defer cancel()

	qrChan, err := client.GetQRChannel(qrCtx)
	if err != nil {
		log.Session(sessionID).WithError(err).Error("Failed to open QR channel")
		return
	}
	if err := client.Connect(); err != nil {
		log.Session(sessionID).WithError(err).Warn("Failed to connect for pairing, scheduling retry")
		m.scheduleReconnect(sessionID, webhookURL)
		return
	}

	for evt := range qrChan {
		switch evt.Event {
		case "code":
			qrDataURL, err := encodeQRDataURL(evt.Code)
			if err != nil {
				log.Session(sessionID).WithError(err).Error("Failed to encode QR code")
				continue
			}
			m.store.UpdateSession(sessionID, storage.SessionUpdate{QRCode: &qrDataURL})
			if m.printQRTerminal {
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			}
		case whatsmeow.QRChannelSuccess.Event:
			return
		default:
			// Timeout or unrecoverable pairing error; drop the stale code.
			log.Session(sessionID).Warn("QR channel closed: " + evt.Event)
			empty := ""
			m.store.UpdateSession(sessionID, storage.SessionUpdate{QRCode: &empty})
			return
		}
	}
}

func encodeQRDataURL(code string) (string, error) {
	qrPNG, err := qrCode.Encode(code, qrCode.Medium, qrImageSize)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG), nil
}

func (m *Manager) handleEvents(sessionID string, webhookURL string, client *whatsmeow.Client) func(interface{}) {
	return func(evt interface{}) {
		switch e := evt.(type) {
		case *events.Connected:
			log.Session(sessionID).Info("Client connected")
			authenticated := true
			empty := ""
			update := storage.SessionUpdate{IsAuthenticated: &authenticated, QRCode: &empty}
			if client.Store.ID != nil {
				phone := client.Store.ID.User
				update.PhoneNumber = &phone
			}
			m.store.UpdateSession(sessionID, update)
			m.dispatchEvent(sessionID, webhook.EventConnectionConnected, nil)

		case *events.LoggedOut:
			log.Session(sessionID).Warn("Client logged out, not reconnecting")
			m.cancelReconnect(sessionID)
			m.dropClient(sessionID, client)
			m.markUnauthenticated(sessionID)
			m.dispatchEvent(sessionID, webhook.EventConnectionLoggedOut, nil)

		case *events.StreamReplaced:
			log.Session(sessionID).Warn("Stream replaced by another connection")
			m.cancelReconnect(sessionID)
			m.dropClient(sessionID, client)
			m.markUnauthenticated(sessionID)

		case *events.Disconnected:
			log.Session(sessionID).Warn("Client disconnected, scheduling reconnect")
			m.dispatchEvent(sessionID, webhook.EventConnectionDisconnected, nil)
			if m.isCurrentClient(sessionID, client) {
				m.scheduleReconnect(sessionID, webhookURL)
			}

		case *events.Message:
			if e.Info.IsFromMe {
				return
			}
			chatID := e.Info.Chat.String()
			if m.store.MarkConversationIfNew(sessionID, chatID) {
				m.dispatchEvent(sessionID, webhook.EventChatFirstMessage, map[string]interface{}{
					"chat":       chatID,
					"sender":     e.Info.Sender.String(),
					"message_id": e.Info.ID,
					"timestamp":  e.Info.Timestamp.Unix(),
				})
			}
		}
	}
}

func (m *Manager) isCurrentClient(sessionID string, client *whatsmeow.Client) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[sessionID] == client
}

func (m *Manager) dropClient(sessionID string, client *whatsmeow.Client) {
	m.mu.Lock()
	current := m.clients[sessionID]
	if current == client {
		delete(m.clients, sessionID)
	}
	m.mu.Unlock()
	if current == client && client != nil {
		client.Disconnect()
	}
}

func (m *Manager) markUnauthenticated(sessionID string) {
	authenticated := false
	m.store.UpdateSession(sessionID, storage.SessionUpdate{IsAuthenticated: &authenticated})
}

// scheduleReconnect arms a cancellable per-session timer that re-invokes
// initialization. Retries are unbounded with a fixed delay.
func (m *Manager) scheduleReconnect(sessionID string, webhookURL string) {
	m.mu.Lock()
	if timer, ok := m.reconnectTimers[sessionID]; ok {
		timer.Stop()
	}
	m.reconnectTimers[sessionID] = time.AfterFunc(m.reconnectDelay, func() {
		m.mu.Lock()
		delete(m.reconnectTimers, sessionID)
		m.mu.Unlock()

		log.Session(sessionID).Info("Reconnecting")
		if _, err := m.InitializeConnection(context.Background(), sessionID, webhookURL); err != nil {
			log.Session(sessionID).WithError(err).Warn("Reconnect attempt failed, scheduling retry")
			m.scheduleReconnect(sessionID, webhookURL)
		}
	})
	m.mu.Unlock()
}

func (m *Manager) cancelReconnect(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timer, ok := m.reconnectTimers[sessionID]; ok {
		timer.Stop()
		delete(m.reconnectTimers, sessionID)
	}
}

// GetConnectionStatus reports the current flags for a known session.
func (m *Manager) GetConnectionStatus(sessionID string) (ConnectionStatus, error) {
	sess, ok := m.store.GetSessionByID(sessionID)
	if !ok {
		return ConnectionStatus{}, ErrSessionNotFound
	}
	return ConnectionStatus{IsAuthenticated: sess.IsAuthenticated, QRCode: sess.QRCode}, nil
}

// Disconnect terminates the live handle if present and marks the session
// unauthenticated. The session record survives so status can still be
// queried. Calling it again is a no-op beyond re-marking unauthenticated.
func (m *Manager) Disconnect(sessionID string) {
	m.cancelReconnect(sessionID)

	m.mu.Lock()
	client := m.clients[sessionID]
	delete(m.clients, sessionID)
	m.mu.Unlock()

	if client != nil {
		client.Disconnect()
	}
	m.markUnauthenticated(sessionID)
	log.Session(sessionID).Info("Session disconnected")
}

func (m *Manager) client(sessionID string) *whatsmeow.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clients[sessionID]
}

// ClientsLen returns the number of live handles.
func (m *Manager) ClientsLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.clients)
}

// RangeClients calls fn for every live handle.
func (m *Manager) RangeClients(fn func(sessionID string, client *whatsmeow.Client)) {
	m.mu.Lock()
	ids := make([]string, 0, len(m.clients))
	for id := range m.clients {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		if client := m.client(id); client != nil {
			fn(id, client)
		}
	}
}

func (m *Manager) dispatchEvent(sessionID string, eventType webhook.EventType, data map[string]interface{}) {
	if m.engine == nil {
		return
	}
	sess, ok := m.store.GetSessionByID(sessionID)
	if !ok || strings.TrimSpace(sess.WebhookURL) == "" {
		return
	}
	m.engine.Dispatch(sess.WebhookURL, webhook.Event{
		EventType: eventType,
		SessionID: sessionID,
		Timestamp: time.Now(),
		Data:      data,
	})
}
