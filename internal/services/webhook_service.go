package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"prahsys_clerk/internal/models"
)

// SignatureHeader carries the webhook signature:
// "prahsys_" + hex(HMAC-SHA256(body, secret)).
const SignatureHeader = "Prahsys-Signature"

const signaturePrefix = "prahsys_"

// ErrWebhookVerification marks signature failures. Always rejected,
// never retried.
var ErrWebhookVerification = errors.New("webhook verification failed")

var (
	errMissingSignature = fmt.Errorf("%w: signature is missing", ErrWebhookVerification)
	errInvalidSignature = fmt.Errorf("%w: invalid signature", ErrWebhookVerification)
)

// WebhookService ingests gateway notifications: verify, persist,
// correlate, dispatch. Reconciliation itself happens asynchronously in
// the WebhookProcessor.
type WebhookService struct {
	db        *gorm.DB
	queue     *Queue
	processor *WebhookProcessor
	secret    string
}

// NewWebhookService builds the ingestion service. queue may be nil; the
// service then falls back to in-process dispatch via processor, which
// may also be nil (store-only mode, used by tests and by deployments
// that run reconciliation purely off sweeps).
func NewWebhookService(db *gorm.DB, queue *Queue, processor *WebhookProcessor, secret string) *WebhookService {
	return &WebhookService{db: db, queue: queue, processor: processor, secret: secret}
}

// VerifySignature checks the HMAC on the raw body. With no secret
// configured verification degrades to allow-all (insecure, for
// non-production use) but a missing header still fails.
func (s *WebhookService) VerifySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}

	if s.secret == "" {
		log.Println("webhook secret not configured, skipping signature verification")
		return true
	}

	mac := hmac.New(sha256.New, []byte(s.secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	provided := strings.TrimPrefix(signature, signaturePrefix)

	return hmac.Equal([]byte(expected), []byte(provided))
}

// Receive ingests one webhook delivery and returns the stored event. The
// event is handed off for asynchronous processing; callers should
// respond success without waiting for reconciliation.
//
// Delivery is at-least-once upstream: re-delivery of an event id yields
// the already-stored row and is not dispatched again.
func (s *WebhookService) Receive(ctx context.Context, body []byte, signature string) (*models.WebhookEvent, error) {
	if signature == "" {
		return nil, errMissingSignature
	}
	if !s.VerifySignature(body, signature) {
		return nil, errInvalidSignature
	}

	payload, err := parseWebhookPayload(body)
	if err != nil {
		return nil, err
	}

	eventID := payload.ID
	if eventID == "" {
		eventID = "evt_" + uuid.NewString()
	}
	eventType := payload.Type
	if eventType == "" {
		eventType = "unknown"
	}

	event := models.WebhookEvent{
		EventID:   eventID,
		EventType: eventType,
		Status:    models.WebhookEventStatusPending,
		Payload:   body,
		Signature: signature,
	}

	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "event_id"}}, DoNothing: true}).
		Create(&event)
	if res.Error != nil {
		return nil, fmt.Errorf("persist webhook event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// Duplicate delivery; return the existing row untouched.
		var existing models.WebhookEvent
		if err := s.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&existing).Error; err != nil {
			return nil, fmt.Errorf("load deduplicated webhook event: %w", err)
		}
		log.Printf("webhook event %s already received, skipping dispatch", eventID)
		return &existing, nil
	}

	if sessionID := payload.sessionID(); sessionID != "" {
		var session models.PaymentSession
		err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&session).Error
		switch {
		case err == nil:
			if err := s.db.WithContext(ctx).Model(&event).Update("payment_session_id", session.ID).Error; err != nil {
				return nil, fmt.Errorf("associate webhook event: %w", err)
			}
			event.PaymentSessionID = &session.ID
		case errors.Is(err, gorm.ErrRecordNotFound):
			// No matching session is fine; the event stays uncorrelated.
		default:
			return nil, fmt.Errorf("look up payment session: %w", err)
		}
	}

	s.dispatch(event.EventID)

	return &event, nil
}

// dispatch hands the event off for asynchronous processing. Failures are
// logged only; the stored pending event is picked up by the worker's
// stale-pending requeue.
func (s *WebhookService) dispatch(eventID string) {
	if s.queue != nil {
		if err := s.queue.EnqueueWebhook(context.Background(), eventID); err != nil {
			log.Printf("failed to enqueue webhook event %s: %v", eventID, err)
		}
		return
	}

	if s.processor != nil {
		go func() {
			if err := s.processor.ProcessByID(context.Background(), eventID); err != nil {
				log.Printf("failed to process webhook event %s: %v", eventID, err)
			}
		}()
		return
	}

	log.Printf("no dispatcher configured, webhook event %s left pending", eventID)
}
