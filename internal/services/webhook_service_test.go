package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"prahsys_clerk/internal/models"
)

const testWebhookSecret = "whsec_test_secret"

func signPayload(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"payment.captured"}`)

	tests := []struct {
		name      string
		secret    string
		signature string
		want      bool
	}{
		{
			name:      "valid signature",
			secret:    testWebhookSecret,
			signature: signPayload(testWebhookSecret, body),
			want:      true,
		},
		{
			name:      "tampered body",
			secret:    testWebhookSecret,
			signature: signPayload(testWebhookSecret, []byte(`{"id":"evt_2"}`)),
			want:      false,
		},
		{
			name:      "wrong secret",
			secret:    testWebhookSecret,
			signature: signPayload("whsec_other", body),
			want:      false,
		},
		{
			name:      "missing signature",
			secret:    testWebhookSecret,
			signature: "",
			want:      false,
		},
		{
			name:      "no secret configured allows any signature",
			secret:    "",
			signature: "prahsys_whatever",
			want:      true,
		},
		{
			name:      "no secret configured still rejects missing signature",
			secret:    "",
			signature: "",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewWebhookService(nil, nil, nil, tt.secret)
			if got := svc.VerifySignature(body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReceiveRejectsMissingSignature(t *testing.T) {
	db := newTestDB(t)
	// Even with no secret configured a missing header is rejected.
	svc := NewWebhookService(db, nil, nil, "")

	_, err := svc.Receive(context.Background(), []byte(`{"id":"evt_1"}`), "")
	if !errors.Is(err, ErrWebhookVerification) {
		t.Fatalf("Receive() error = %v, want ErrWebhookVerification", err)
	}
	if got := countRows(t, db, &models.WebhookEvent{}, ""); got != 0 {
		t.Errorf("stored %d events, want 0", got)
	}
}

func TestReceiveRejectsInvalidSignature(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_1","type":"payment.captured"}`)
	_, err := svc.Receive(context.Background(), body, "prahsys_deadbeef")
	if !errors.Is(err, ErrWebhookVerification) {
		t.Fatalf("Receive() error = %v, want ErrWebhookVerification", err)
	}
}

func TestReceiveRejectsMalformedPayload(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{not json`)
	_, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err == nil {
		t.Fatal("Receive() accepted malformed payload")
	}
	if errors.Is(err, ErrWebhookVerification) {
		t.Fatalf("Receive() error = %v, want a payload error, not a verification error", err)
	}
}

func TestReceiveStoresAndAssociatesSession(t *testing.T) {
	db := newTestDB(t)
	session := createTestSession(t, db, "sess_assoc", models.SessionStatusPending)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_assoc","type":"payment.captured","data":{"object":{"id":"pay_1","status":"CAPTURED","session_id":"sess_assoc"}}}`)
	event, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}

	if event.EventID != "evt_assoc" {
		t.Errorf("EventID = %q, want evt_assoc", event.EventID)
	}
	if event.EventType != "payment.captured" {
		t.Errorf("EventType = %q, want payment.captured", event.EventType)
	}
	if event.Status != models.WebhookEventStatusPending {
		t.Errorf("Status = %q, want pending", event.Status)
	}
	if event.PaymentSessionID == nil || *event.PaymentSessionID != session.ID {
		t.Errorf("PaymentSessionID = %v, want %d", event.PaymentSessionID, session.ID)
	}
}

func TestReceiveAssociatesTopLevelSessionID(t *testing.T) {
	db := newTestDB(t)
	session := createTestSession(t, db, "sess_top", models.SessionStatusPending)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_top","type":"session.expired","session_id":"sess_top"}`)
	event, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if event.PaymentSessionID == nil || *event.PaymentSessionID != session.ID {
		t.Errorf("PaymentSessionID = %v, want %d", event.PaymentSessionID, session.ID)
	}
}

func TestReceiveUnknownSessionStaysUncorrelated(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_orphan","type":"payment.captured","session_id":"sess_nope"}`)
	event, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if event.PaymentSessionID != nil {
		t.Errorf("PaymentSessionID = %v, want nil", event.PaymentSessionID)
	}
}

func TestReceiveDeduplicatesByEventID(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_dup","type":"payment.captured"}`)
	sig := signPayload(testWebhookSecret, body)

	first, err := svc.Receive(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("first Receive() error = %v", err)
	}
	second, err := svc.Receive(context.Background(), body, sig)
	if err != nil {
		t.Fatalf("second Receive() error = %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("duplicate delivery returned row %d, want %d", second.ID, first.ID)
	}
	if got := countRows(t, db, &models.WebhookEvent{}, "event_id = ?", "evt_dup"); got != 1 {
		t.Errorf("stored %d rows for evt_dup, want 1", got)
	}
}

func TestReceiveGeneratesEventIDWhenMissing(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"type":"payment.captured"}`)
	event, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !strings.HasPrefix(event.EventID, "evt_") {
		t.Errorf("EventID = %q, want generated evt_ prefix", event.EventID)
	}
}

func TestReceiveDefaultsUnknownEventType(t *testing.T) {
	db := newTestDB(t)
	svc := NewWebhookService(db, nil, nil, testWebhookSecret)

	body := []byte(`{"id":"evt_untyped"}`)
	event, err := svc.Receive(context.Background(), body, signPayload(testWebhookSecret, body))
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if event.EventType != "unknown" {
		t.Errorf("EventType = %q, want unknown", event.EventType)
	}
}
