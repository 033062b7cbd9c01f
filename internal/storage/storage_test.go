package storage

import (
	"strconv"
	"testing"
	"time"
)

func TestCreateMessageAssignsIncreasingIDs(t *testing.T) {
	store := NewStore()

	var prev uint64
	for i := 0; i < 5; i++ {
		msg := store.CreateMessage("5511999999999", "hello")
		if msg.Status != StatusPending {
			t.Fatalf("new message status = %q, want %q", msg.Status, StatusPending)
		}
		id, err := strconv.ParseUint(msg.ID, 10, 64)
		if err != nil {
			t.Fatalf("message id %q is not numeric: %v", msg.ID, err)
		}
		if id <= prev {
			t.Fatalf("message id %d not greater than previous %d", id, prev)
		}
		prev = id
	}
}

func TestGetAllMessagesInsertionOrder(t *testing.T) {
	store := NewStore()
	for i := 0; i < 3; i++ {
		store.CreateMessage("5511999999999", "msg")
	}

	all := store.GetAllMessages()
	if len(all) != 3 {
		t.Fatalf("len(GetAllMessages()) = %d, want 3", len(all))
	}
	for i, msg := range all {
		if msg.ID != strconv.Itoa(i+1) {
			t.Errorf("message %d has id %q, want %q", i, msg.ID, strconv.Itoa(i+1))
		}
	}
}

func TestUpdateMessageStatus(t *testing.T) {
	store := NewStore()
	msg := store.CreateMessage("5511999999999", "hello")

	if !store.UpdateMessageStatus(msg.ID, StatusSent) {
		t.Fatal("UpdateMessageStatus returned false for known id")
	}
	got, ok := store.GetMessageByID(msg.ID)
	if !ok || got.Status != StatusSent {
		t.Fatalf("message after update = %+v, want status %q", got, StatusSent)
	}

	if store.UpdateMessageStatus("999", StatusSent) {
		t.Error("UpdateMessageStatus returned true for unknown id")
	}
}

func TestGetOrCreateSessionIsIdempotent(t *testing.T) {
	store := NewStore()

	first := store.GetOrCreateSession("clinic-1", "https://example.com/hook")
	if first.IsAuthenticated {
		t.Error("new session should start unauthenticated")
	}
	if first.WebhookURL != "https://example.com/hook" {
		t.Errorf("webhook url = %q", first.WebhookURL)
	}

	second := store.GetOrCreateSession("clinic-1", "https://other.example.com")
	if second.WebhookURL != first.WebhookURL {
		t.Errorf("re-initialization replaced the record: webhook url = %q", second.WebhookURL)
	}
}

func TestUpdateSessionRefreshesLastActivity(t *testing.T) {
	store := NewStore()
	sess := store.GetOrCreateSession("clinic-1", "")

	time.Sleep(5 * time.Millisecond)
	authenticated := true
	if !store.UpdateSession("clinic-1", SessionUpdate{IsAuthenticated: &authenticated}) {
		t.Fatal("UpdateSession returned false for known id")
	}

	got, ok := store.GetSessionByID("clinic-1")
	if !ok {
		t.Fatal("session disappeared after update")
	}
	if !got.IsAuthenticated {
		t.Error("IsAuthenticated not applied")
	}
	if !got.LastActivity.After(sess.LastActivity) {
		t.Error("LastActivity was not refreshed")
	}

	if store.UpdateSession("unknown", SessionUpdate{IsAuthenticated: &authenticated}) {
		t.Error("UpdateSession returned true for unknown id")
	}
}

func TestUpdateSessionPartial(t *testing.T) {
	store := NewStore()
	store.GetOrCreateSession("clinic-1", "https://example.com/hook")

	qr := "data:image/png;base64,abc"
	store.UpdateSession("clinic-1", SessionUpdate{QRCode: &qr})

	got, _ := store.GetSessionByID("clinic-1")
	if got.QRCode != qr {
		t.Errorf("qr code = %q, want %q", got.QRCode, qr)
	}
	if got.WebhookURL != "https://example.com/hook" {
		t.Errorf("untouched field changed: webhook url = %q", got.WebhookURL)
	}
}

func TestGetActiveSession(t *testing.T) {
	store := NewStore()
	if _, ok := store.GetActiveSession(); ok {
		t.Fatal("empty store reported an active session")
	}

	store.GetOrCreateSession("a", "")
	store.GetOrCreateSession("b", "")
	authenticated := true
	store.UpdateSession("b", SessionUpdate{IsAuthenticated: &authenticated})

	active, ok := store.GetActiveSession()
	if !ok || active.ID != "b" {
		t.Fatalf("active session = %+v, ok = %v, want session b", active, ok)
	}
}

func TestMarkConversationIfNew(t *testing.T) {
	store := NewStore()
	store.GetOrCreateSession("clinic-1", "")

	if !store.MarkConversationIfNew("clinic-1", "5511988887777@s.whatsapp.net") {
		t.Fatal("first sighting of a chat must return true")
	}
	if store.MarkConversationIfNew("clinic-1", "5511988887777@s.whatsapp.net") {
		t.Fatal("second sighting of the same chat must return false")
	}
	if !store.MarkConversationIfNew("clinic-1", "5511900001111@s.whatsapp.net") {
		t.Error("a different chat must be reported as new")
	}
	if !store.MarkConversationIfNew("clinic-2", "5511988887777@s.whatsapp.net") {
		t.Error("seen-chat sets must be per session")
	}
}

func TestDeleteSessionClearsSeenChats(t *testing.T) {
	store := NewStore()
	store.GetOrCreateSession("clinic-1", "")
	store.MarkConversationIfNew("clinic-1", "chat-a")

	if !store.DeleteSession("clinic-1") {
		t.Fatal("DeleteSession returned false for known id")
	}
	if _, ok := store.GetSessionByID("clinic-1"); ok {
		t.Error("session still present after delete")
	}

	store.GetOrCreateSession("clinic-1", "")
	if !store.MarkConversationIfNew("clinic-1", "chat-a") {
		t.Error("seen-chat set must reset after session deletion")
	}

	if store.DeleteSession("never-existed") {
		t.Error("DeleteSession returned true for unknown id")
	}
}
