package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionStatusCreated    SessionStatus = "created"
	SessionStatusPending    SessionStatus = "pending"
	SessionStatusAuthorized SessionStatus = "authorized"
	SessionStatusCaptured   SessionStatus = "captured"
	SessionStatusFailed     SessionStatus = "failed"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusVoided     SessionStatus = "voided"
	SessionStatusVerified   SessionStatus = "verified"
)

// PaymentSession is one checkout attempt against the gateway, keyed by the
// externally issued session id.
type PaymentSession struct {
	ID                  uint            `gorm:"primaryKey" json:"id"`
	SessionID           string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"session_id"`
	PaymentID           string          `gorm:"type:varchar(100);index" json:"payment_id"`
	MerchantID          string          `gorm:"type:varchar(100);index" json:"merchant_id"`
	Status              SessionStatus   `gorm:"type:varchar(20);default:created;index" json:"status"`
	Amount              decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Currency            string          `gorm:"type:varchar(3);default:USD" json:"currency"`
	Description         string          `gorm:"type:text" json:"description"`
	CustomerEmail       string          `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerName        string          `gorm:"type:varchar(255)" json:"customer_name"`
	PaymentMethod       string          `gorm:"type:varchar(50)" json:"payment_method"`
	CardLast4           string          `gorm:"type:varchar(4)" json:"card_last4"`
	CardBrand           string          `gorm:"type:varchar(50)" json:"card_brand"`
	PortalConfiguration json.RawMessage `gorm:"type:jsonb" json:"portal_configuration,omitempty"`
	SuccessIndicator    string          `gorm:"type:varchar(255)" json:"-"`
	ResultIndicator     string          `gorm:"type:varchar(255)" json:"result_indicator,omitempty"`
	Metadata            json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	ExpiresAt           *time.Time      `gorm:"index" json:"expires_at,omitempty"`
	CompletedAt         *time.Time      `json:"completed_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
	DeletedAt           gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`

	// Relationships
	Transactions  []PaymentTransaction `gorm:"foreignKey:PaymentSessionID;constraint:OnDelete:CASCADE" json:"transactions,omitempty"`
	WebhookEvents []WebhookEvent       `gorm:"foreignKey:PaymentSessionID" json:"webhook_events,omitempty"`
}

func (PaymentSession) TableName() string {
	return "clerk_payment_sessions"
}

// IsExpired reports whether the session is past its expiry timestamp,
// regardless of whether the durable status transition has happened yet.
func (s *PaymentSession) IsExpired() bool {
	return s.ExpiresAt != nil && time.Now().After(*s.ExpiresAt)
}

func (s *PaymentSession) IsCompleted() bool {
	return s.Status == SessionStatusCaptured || s.Status == SessionStatusAuthorized
}

func (s *PaymentSession) IsPending() bool {
	return s.Status == SessionStatusPending
}

func (s *PaymentSession) IsFailed() bool {
	return s.Status == SessionStatusFailed
}

// IsPortalSession reports whether this is a hosted-checkout session.
func (s *PaymentSession) IsPortalSession() bool {
	return len(s.PortalConfiguration) > 0 && string(s.PortalConfiguration) != "null"
}
