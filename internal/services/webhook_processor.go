package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"prahsys_clerk/internal/models"
)

// WebhookProcessor applies webhook events to stored sessions and
// transactions. Each event is applied at most once per delivery; failed
// events stay eligible for the retry sweep until the ceiling.
type WebhookProcessor struct {
	db          *gorm.DB
	queue       *Queue
	audit       *AuditLogger
	maxAttempts int
}

// NewWebhookProcessor builds the reconciliation engine. queue may be
// nil; events are then processed without a lease, which is only safe
// when a single worker runs.
func NewWebhookProcessor(db *gorm.DB, queue *Queue, audit *AuditLogger, maxAttempts int) *WebhookProcessor {
	return &WebhookProcessor{db: db, queue: queue, audit: audit, maxAttempts: maxAttempts}
}

// ProcessByID loads an event by its external id and processes it.
func (p *WebhookProcessor) ProcessByID(ctx context.Context, eventID string) error {
	var event models.WebhookEvent
	if err := p.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&event).Error; err != nil {
		return fmt.Errorf("load webhook event %s: %w", eventID, err)
	}
	return p.Process(ctx, &event)
}

// Process applies one event. Already-processed events are a no-op;
// events claimed by another worker are skipped. On failure the event is
// marked failed with its retry counter incremented and the error is
// returned to the caller.
func (p *WebhookProcessor) Process(ctx context.Context, event *models.WebhookEvent) error {
	if event.IsProcessed() {
		return nil
	}

	if p.queue != nil {
		claimed, err := p.queue.ClaimEvent(ctx, event.EventID)
		if err != nil {
			log.Printf("event claim unavailable for %s, proceeding without lease: %v", event.EventID, err)
		} else if !claimed {
			log.Printf("webhook event %s is in flight elsewhere, skipping", event.EventID)
			return nil
		} else {
			defer func() {
				if err := p.queue.ReleaseEvent(context.Background(), event.EventID); err != nil {
					log.Printf("failed to release claim on %s: %v", event.EventID, err)
				}
			}()
		}
	}

	if err := p.apply(ctx, event); err != nil {
		p.markFailed(ctx, event, err)
		log.Printf("failed to process webhook event %s (%s), retry_count=%d: %v",
			event.EventID, event.EventType, event.RetryCount, err)
		return err
	}

	p.markProcessed(ctx, event)
	log.Printf("webhook event %s (%s) processed", event.EventID, event.EventType)
	return nil
}

// RetrySweep re-processes failed events under the retry ceiling. One bad
// event never blocks the rest of the batch. Returns the number of events
// that processed successfully.
func (p *WebhookProcessor) RetrySweep(ctx context.Context) (int, error) {
	var events []models.WebhookEvent
	err := p.db.WithContext(ctx).
		Where("status = ? AND retry_count < ?", models.WebhookEventStatusFailed, p.maxAttempts).
		Order("id").
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("load failed webhook events: %w", err)
	}

	processed := 0
	for i := range events {
		if ctx.Err() != nil {
			return processed, ctx.Err()
		}
		if err := p.Process(ctx, &events[i]); err != nil {
			continue
		}
		if events[i].IsProcessed() {
			processed++
		}
	}
	return processed, nil
}

// RequeueStalePending puts pending events that never got processed back
// on the queue. This covers dispatches lost between the row insert and
// the enqueue (at-least-once delivery).
func (p *WebhookProcessor) RequeueStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var events []models.WebhookEvent
	err := p.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.WebhookEventStatusPending, cutoff).
		Order("id").
		Find(&events).Error
	if err != nil {
		return 0, fmt.Errorf("load stale pending events: %w", err)
	}

	requeued := 0
	for i := range events {
		if p.queue != nil {
			if err := p.queue.EnqueueWebhook(ctx, events[i].EventID); err != nil {
				log.Printf("failed to requeue webhook event %s: %v", events[i].EventID, err)
				continue
			}
			requeued++
			continue
		}
		if err := p.Process(ctx, &events[i]); err != nil {
			continue
		}
		requeued++
	}
	return requeued, nil
}

// apply runs the per-type state machine against the associated session.
// Events without an associated session are a no-op apart from logging.
func (p *WebhookProcessor) apply(ctx context.Context, event *models.WebhookEvent) error {
	payload, err := parseWebhookPayload(event.Payload)
	if err != nil {
		return err
	}
	obj, err := payload.object()
	if err != nil {
		return err
	}

	var session *models.PaymentSession
	if event.PaymentSessionID != nil {
		var loaded models.PaymentSession
		if err := p.db.WithContext(ctx).First(&loaded, *event.PaymentSessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Printf("webhook event %s references missing session %d", event.EventID, *event.PaymentSessionID)
			} else {
				return fmt.Errorf("load session %d: %w", *event.PaymentSessionID, err)
			}
		} else {
			session = &loaded
		}
	}

	switch event.EventType {
	case "payment.created":
		if session == nil {
			return nil
		}
		return p.updateSessionStatus(ctx, session, models.SessionStatusPending, false)

	case "payment.captured":
		if session == nil {
			return nil
		}
		if err := p.updateSessionStatus(ctx, session, models.SessionStatusCaptured, true); err != nil {
			return err
		}
		return p.createTransaction(ctx, session, payload, obj, models.TransactionTypeCapture, "captured")

	case "payment.authorized":
		if session == nil {
			return nil
		}
		if err := p.updateSessionStatus(ctx, session, models.SessionStatusAuthorized, true); err != nil {
			return err
		}
		return p.createTransaction(ctx, session, payload, obj, models.TransactionTypePayment, "")

	case "payment.failed":
		if session == nil {
			return nil
		}
		if err := p.updateSessionStatus(ctx, session, models.SessionStatusFailed, false); err != nil {
			return err
		}
		return p.createTransaction(ctx, session, payload, obj, models.TransactionTypePayment, "failed")

	case "payment.refunded":
		if session == nil {
			return nil
		}
		return p.createTransaction(ctx, session, payload, obj, models.TransactionTypeRefund, "")

	case "payment.voided":
		if session == nil {
			return nil
		}
		if err := p.updateSessionStatus(ctx, session, models.SessionStatusVoided, false); err != nil {
			return err
		}
		return p.createTransaction(ctx, session, payload, obj, models.TransactionTypeVoid, "")

	case "session.expired":
		if session == nil {
			return nil
		}
		return p.updateSessionStatus(ctx, session, models.SessionStatusExpired, false)

	default:
		log.Printf("unknown webhook event type %q (event %s)", event.EventType, event.EventID)
		return nil
	}
}

func (p *WebhookProcessor) updateSessionStatus(ctx context.Context, session *models.PaymentSession, status models.SessionStatus, setCompleted bool) error {
	previous := session.Status

	updates := map[string]any{"status": status}
	if setCompleted {
		now := time.Now()
		updates["completed_at"] = &now
		session.CompletedAt = &now
	}

	if err := p.db.WithContext(ctx).Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("update session %s status: %w", session.SessionID, err)
	}
	session.Status = status

	p.audit.LogStatusChange(models.AuditEntityPaymentSession, session.ID, string(previous), string(status),
		map[string]any{"source": "webhook"})
	return nil
}

// createTransaction records the gateway operation implied by the event,
// pulling amount/currency/reference from the payload object when present
// and falling back to the session's own values.
func (p *WebhookProcessor) createTransaction(ctx context.Context, session *models.PaymentSession, payload *webhookPayload, obj *payloadObject, txType models.TransactionType, statusOverride string) error {
	now := time.Now()

	tx := models.PaymentTransaction{
		PaymentSessionID: session.ID,
		Type:             txType,
		Amount:           session.Amount,
		Currency:         session.Currency,
		GatewayResponse:  payload.Data.Object,
		ProcessedAt:      &now,
	}

	status := statusOverride
	if obj != nil {
		tx.TransactionID = obj.ID
		tx.Reference = obj.Reference
		tx.CardData = obj.Card
		tx.CustomerData = obj.Customer
		if obj.Amount != nil {
			tx.Amount = *obj.Amount
		}
		if obj.Currency != "" {
			tx.Currency = obj.Currency
		}
		if status == "" && obj.Status != "" {
			status = strings.ToLower(obj.Status)
		}
	}
	if status == "" {
		status = "completed"
	}
	tx.Status = status

	if tx.TransactionID == "" {
		tx.TransactionID = "webhook_" + uuid.NewString()
	}

	switch txType {
	case models.TransactionTypeCapture:
		tx.CapturedAt = &now
	case models.TransactionTypeRefund:
		tx.RefundedAt = &now
	case models.TransactionTypeVoid:
		tx.VoidedAt = &now
	}

	if err := p.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return fmt.Errorf("create %s transaction for session %s: %w", txType, session.SessionID, err)
	}

	p.audit.LogCreated(models.AuditEntityPaymentTransaction, tx.ID, map[string]any{
		"transaction_id": tx.TransactionID,
		"type":           string(txType),
		"status":         tx.Status,
		"amount":         tx.Amount.String(),
		"currency":       tx.Currency,
	})
	return nil
}

func (p *WebhookProcessor) markProcessed(ctx context.Context, event *models.WebhookEvent) {
	now := time.Now()
	updates := map[string]any{
		"status":        models.WebhookEventStatusProcessed,
		"processed_at":  &now,
		"error_message": "",
	}
	if err := p.db.WithContext(ctx).Model(event).Updates(updates).Error; err != nil {
		log.Printf("failed to mark event %s processed: %v", event.EventID, err)
		return
	}
	event.Status = models.WebhookEventStatusProcessed
	event.ProcessedAt = &now
	event.ErrorMessage = ""
}

func (p *WebhookProcessor) markFailed(ctx context.Context, event *models.WebhookEvent, applyErr error) {
	now := time.Now()
	updates := map[string]any{
		"status":        models.WebhookEventStatusFailed,
		"failed_at":     &now,
		"error_message": applyErr.Error(),
		"retry_count":   gorm.Expr("retry_count + ?", 1),
	}
	if err := p.db.WithContext(ctx).Model(event).Updates(updates).Error; err != nil {
		log.Printf("failed to mark event %s failed: %v", event.EventID, err)
		return
	}
	event.Status = models.WebhookEventStatusFailed
	event.FailedAt = &now
	event.ErrorMessage = applyErr.Error()
	event.RetryCount++
}
