package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prahsys_clerk/internal/middleware"
	"prahsys_clerk/internal/services"
)

const testSecret = "whsec_handler_test"

func newWebhookTestServer(t *testing.T) *echo.Echo {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := services.AutoMigrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	webhooks := services.NewWebhookService(db, nil, nil, testSecret)

	e := echo.New()
	e.HTTPErrorHandler = middleware.CustomErrorHandler
	e.POST("/webhooks/prahsys", NewWebhookHandler(webhooks).HandleWebhook)
	return e
}

func sign(body string) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write([]byte(body))
	return "prahsys_" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleWebhookAccepted(t *testing.T) {
	e := newWebhookTestServer(t)

	body := `{"id":"evt_h1","type":"payment.captured"}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/prahsys", strings.NewReader(body))
	req.Header.Set(services.SignatureHeader, sign(body))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != true {
		t.Errorf("success = %v, want true", resp["success"])
	}
	if resp["event_id"] != "evt_h1" {
		t.Errorf("event_id = %v, want evt_h1", resp["event_id"])
	}
}

func TestHandleWebhookMissingSignature(t *testing.T) {
	e := newWebhookTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/prahsys", strings.NewReader(`{"id":"evt_h2"}`))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body: %s", rec.Code, rec.Body)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["success"] != false {
		t.Errorf("success = %v, want false", resp["success"])
	}
	if resp["error"] != "Webhook verification failed" {
		t.Errorf("error = %v, want verification failure message", resp["error"])
	}
}

func TestHandleWebhookTamperedBody(t *testing.T) {
	e := newWebhookTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/prahsys", strings.NewReader(`{"id":"evt_h3","amount":999}`))
	req.Header.Set(services.SignatureHeader, sign(`{"id":"evt_h3","amount":1}`))
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401; body: %s", rec.Code, rec.Body)
	}
}
