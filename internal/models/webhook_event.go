package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type WebhookEventStatus string

const (
	WebhookEventStatusPending   WebhookEventStatus = "pending"
	WebhookEventStatusProcessed WebhookEventStatus = "processed"
	WebhookEventStatusFailed    WebhookEventStatus = "failed"
)

// WebhookEvent is one record per inbound gateway notification. Created
// once on receipt; mutated only by the reconciliation processor.
type WebhookEvent struct {
	ID               uint               `gorm:"primaryKey" json:"id"`
	PaymentSessionID *uint              `gorm:"index" json:"payment_session_id,omitempty"`
	EventID          string             `gorm:"type:varchar(100);uniqueIndex;not null" json:"event_id"`
	EventType        string             `gorm:"type:varchar(100);index" json:"event_type"`
	Status           WebhookEventStatus `gorm:"type:varchar(20);default:pending;index:idx_webhook_status_retry" json:"status"`
	Payload          json.RawMessage    `gorm:"type:jsonb;not null" json:"payload"`
	Signature        string             `gorm:"type:varchar(255)" json:"signature,omitempty"`
	ProcessedAt      *time.Time         `json:"processed_at,omitempty"`
	FailedAt         *time.Time         `json:"failed_at,omitempty"`
	RetryCount       int                `gorm:"default:0;index:idx_webhook_status_retry" json:"retry_count"`
	ErrorMessage     string             `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt        time.Time          `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
	DeletedAt        gorm.DeletedAt     `gorm:"index" json:"deleted_at,omitempty"`

	PaymentSession *PaymentSession `gorm:"foreignKey:PaymentSessionID" json:"-"`
}

func (WebhookEvent) TableName() string {
	return "clerk_webhook_events"
}

func (e *WebhookEvent) IsProcessed() bool {
	return e.Status == WebhookEventStatusProcessed
}

func (e *WebhookEvent) IsPending() bool {
	return e.Status == WebhookEventStatusPending
}

func (e *WebhookEvent) IsFailed() bool {
	return e.Status == WebhookEventStatusFailed
}

// CanRetry reports whether a failed event is still under the retry ceiling.
func (e *WebhookEvent) CanRetry(maxAttempts int) bool {
	return e.IsFailed() && e.RetryCount < maxAttempts
}
