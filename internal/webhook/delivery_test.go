package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func waitForLogs(t *testing.T, engine *Engine, want int) []DeliveryLog {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		logs := engine.Logs()
		if len(logs) >= want {
			return logs
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d delivery log entries", want)
	return nil
}

func TestDispatchDeliversEvent(t *testing.T) {
	var received atomic.Int32
	var gotEvent Event
	var gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader = r.Header.Get("X-Webhook-Event")
		_ = json.NewDecoder(r.Body).Decode(&gotEvent)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	engine := NewEngineWithConfig(Config{Workers: 1, RetryLimit: 1, AllowInsecure: true, Enabled: true})
	defer engine.Shutdown()

	engine.Dispatch(server.URL, Event{
		EventType: EventChatFirstMessage,
		SessionID: "clinic-1",
		Timestamp: time.Now(),
		Data:      map[string]interface{}{"chat": "5511999999999@s.whatsapp.net"},
	})

	logs := waitForLogs(t, engine, 1)
	if received.Load() != 1 {
		t.Fatalf("server received %d requests, want 1", received.Load())
	}
	if gotHeader != string(EventChatFirstMessage) {
		t.Errorf("X-Webhook-Event = %q", gotHeader)
	}
	if gotEvent.SessionID != "clinic-1" {
		t.Errorf("delivered session id = %q", gotEvent.SessionID)
	}
	if logs[0].Status != DeliverySuccess {
		t.Errorf("delivery log status = %q, want success", logs[0].Status)
	}
}

func TestDispatchSignsPayloadWhenSecretSet(t *testing.T) {
	var signature string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		signature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	engine := NewEngineWithConfig(Config{Workers: 1, RetryLimit: 1, Secret: "hunter2", AllowInsecure: true, Enabled: true})
	defer engine.Shutdown()

	engine.Dispatch(server.URL, Event{EventType: EventConnectionConnected, SessionID: "s1", Timestamp: time.Now()})

	waitForLogs(t, engine, 1)
	if signature == "" || signature[:7] != "sha256=" {
		t.Errorf("signature header = %q, want sha256= prefix", signature)
	}
}

func TestInsecureURLRejectedByDefault(t *testing.T) {
	engine := NewEngineWithConfig(Config{Workers: 1, RetryLimit: 1, Enabled: true})
	defer engine.Shutdown()

	engine.Dispatch("http://127.0.0.1:9/hook", Event{EventType: EventConnectionLoggedOut, SessionID: "s1", Timestamp: time.Now()})

	logs := waitForLogs(t, engine, 1)
	if logs[0].Status != DeliveryFailed {
		t.Fatalf("delivery log status = %q, want failed", logs[0].Status)
	}
	if logs[0].AttemptCount != 0 {
		t.Errorf("rejected URL should not be attempted, attempts = %d", logs[0].AttemptCount)
	}
}

func TestDisabledEngineDropsEvents(t *testing.T) {
	engine := NewEngineWithConfig(Config{Workers: 1, RetryLimit: 1, Enabled: false})

	engine.Dispatch("https://example.com/hook", Event{EventType: EventConnectionDisconnected, SessionID: "s1", Timestamp: time.Now()})

	time.Sleep(50 * time.Millisecond)
	if len(engine.Logs()) != 0 {
		t.Error("disabled engine recorded a delivery")
	}
}
