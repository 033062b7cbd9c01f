package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/apointly/whatsapp-service/internal/storage"
	"github.com/apointly/whatsapp-service/pkg/router"
	"github.com/apointly/whatsapp-service/pkg/whatsapp"
)

func newTestApp(t *testing.T) (*fiber.App, *storage.Store) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: router.HttpErrorHandler})
	store := storage.NewStore()
	manager := whatsapp.NewManager(store, nil)
	Routes(app, manager, store)
	return app, store
}

func decodeEnvelope(t *testing.T, resp *http.Response) router.Response {
	t.Helper()
	var body router.Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestHealthEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestIndexEndpoint(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	body := decodeEnvelope(t, resp)
	if !body.Success {
		t.Error("index response success = false")
	}
}

func TestInitRequiresSessionID(t *testing.T) {
	app, _ := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/init", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeEnvelope(t, resp)
	if body.Success {
		t.Error("error response success = true")
	}
	if body.Error == "" {
		t.Error("error response missing error field")
	}
}

func TestStatusUnknownSession(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/auth/status?sessionId=ghost", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSendWithoutConnection(t *testing.T) {
	app, _ := newTestApp(t)

	payload := `{"sessionId":"clinic-1","number":"11999999999","message":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/message/send", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	body := decodeEnvelope(t, resp)
	if body.Message != "WhatsApp is not connected or authenticated" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestListMessagesEmpty(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/messages", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decodeEnvelope(t, resp)
	data, ok := body.Data.(map[string]interface{})
	if !ok {
		t.Fatalf("data = %T, want object", body.Data)
	}
	if total, _ := data["total"].(float64); total != 0 {
		t.Errorf("total = %v, want 0", data["total"])
	}
}

func TestUnknownRouteReturnsEnvelope(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/nope", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body := decodeEnvelope(t, resp)
	if body.Success {
		t.Error("not-found response success = true")
	}
	if body.Message != "route not found" {
		t.Errorf("message = %q", body.Message)
	}
}

func TestLogoutUnknownSessionSucceeds(t *testing.T) {
	app, store := newTestApp(t)
	store.GetOrCreateSession("clinic-1", "")

	payload := `{"sessionId":"clinic-1"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	sess, ok := store.GetSessionByID("clinic-1")
	if !ok {
		t.Fatal("logout removed the session record")
	}
	if sess.IsAuthenticated {
		t.Error("session still authenticated after logout")
	}
}
