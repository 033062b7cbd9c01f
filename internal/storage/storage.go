package storage

import (
	"strconv"
	"sync"
	"time"
)

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
	StatusFailed    MessageStatus = "failed"
)

type Message struct {
	ID        string        `json:"id"`
	Number    string        `json:"number"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
	Status    MessageStatus `json:"status"`
}

type Session struct {
	ID              string    `json:"id"`
	IsAuthenticated bool      `json:"isAuthenticated"`
	QRCode          string    `json:"qrCode,omitempty"`
	PhoneNumber     string    `json:"phoneNumber,omitempty"`
	WebhookURL      string    `json:"webhookUrl,omitempty"`
	LastActivity    time.Time `json:"lastActivity"`
}

// SessionUpdate carries the fields to change; nil fields are left untouched.
type SessionUpdate struct {
	IsAuthenticated *bool
	QRCode          *string
	PhoneNumber     *string
	WebhookURL      *string
}

// Store holds every message and session in process memory. It is constructed
// once and shared by reference; there is no persistence across restarts.
type Store struct {
	mu             sync.RWMutex
	messages       map[string]*Message
	messageOrder   []string
	messageCounter uint64
	sessions       map[string]*Session
	seenChats      map[string]map[string]struct{}
}

func NewStore() *Store {
	return &Store{
		messages:  make(map[string]*Message),
		sessions:  make(map[string]*Session),
		seenChats: make(map[string]map[string]struct{}),
	}
}

// CreateMessage records a new pending message and assigns it the next id.
// Ids are strictly increasing within the process lifetime.
func (s *Store) CreateMessage(number string, body string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messageCounter++
	msg := &Message{
		ID:        strconv.FormatUint(s.messageCounter, 10),
		Number:    number,
		Message:   body,
		Timestamp: time.Now(),
		Status:    StatusPending,
	}
	s.messages[msg.ID] = msg
	s.messageOrder = append(s.messageOrder, msg.ID)
	return *msg
}

func (s *Store) GetMessageByID(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msg, ok := s.messages[id]
	if !ok {
		return Message{}, false
	}
	return *msg, true
}

// GetAllMessages returns every stored message in insertion order.
func (s *Store) GetAllMessages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Message, 0, len(s.messageOrder))
	for _, id := range s.messageOrder {
		all = append(all, *s.messages[id])
	}
	return all
}

func (s *Store) UpdateMessageStatus(id string, status MessageStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, ok := s.messages[id]
	if !ok {
		return false
	}
	msg.Status = status
	return true
}

// GetOrCreateSession returns the existing session for the identifier or
// creates an unauthenticated one. Re-initializing reuses the record as-is.
func (s *Store) GetOrCreateSession(id string, webhookURL string) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[id]; ok {
		return *sess
	}
	sess := &Session{
		ID:           id,
		WebhookURL:   webhookURL,
		LastActivity: time.Now(),
	}
	s.sessions[id] = sess
	return *sess
}

func (s *Store) GetSessionByID(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *sess, true
}

// UpdateSession applies a partial update and refreshes last activity.
func (s *Store) UpdateSession(id string, update SessionUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false
	}
	if update.IsAuthenticated != nil {
		sess.IsAuthenticated = *update.IsAuthenticated
	}
	if update.QRCode != nil {
		sess.QRCode = *update.QRCode
	}
	if update.PhoneNumber != nil {
		sess.PhoneNumber = *update.PhoneNumber
	}
	if update.WebhookURL != nil {
		sess.WebhookURL = *update.WebhookURL
	}
	sess.LastActivity = time.Now()
	return true
}

// GetActiveSession returns the first authenticated session found, if any.
func (s *Store) GetActiveSession() (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sess := range s.sessions {
		if sess.IsAuthenticated {
			return *sess, true
		}
	}
	return Session{}, false
}

// DeleteSession removes the session record and its seen-chat bookkeeping.
func (s *Store) DeleteSession(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seenChats, id)
	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	return true
}

// MarkConversationIfNew reports whether the chat was unseen for the session
// and marks it seen. The set only resets when the session is deleted.
func (s *Store) MarkConversationIfNew(sessionID string, chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen, ok := s.seenChats[sessionID]
	if !ok {
		seen = make(map[string]struct{})
		s.seenChats[sessionID] = seen
	}
	if _, ok := seen[chatID]; ok {
		return false
	}
	seen[chatID] = struct{}{}
	return true
}
