package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type TransactionType string

const (
	TransactionTypePayment TransactionType = "payment"
	TransactionTypeCapture TransactionType = "capture"
	TransactionTypeRefund  TransactionType = "refund"
	TransactionTypeVoid    TransactionType = "void"
)

// PaymentTransaction is one durable record per gateway operation against a
// session. Immutable after creation except for the denormalized
// per-type timestamps.
type PaymentTransaction struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	PaymentSessionID uint            `gorm:"index;not null" json:"payment_session_id"`
	TransactionID    string          `gorm:"type:varchar(100);uniqueIndex;not null" json:"transaction_id"`
	Type             TransactionType `gorm:"type:varchar(20);index" json:"type"`
	Status           string          `gorm:"type:varchar(20);default:pending;index" json:"status"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2)" json:"amount"`
	Currency         string          `gorm:"type:varchar(3);default:USD" json:"currency"`
	Reference        string          `gorm:"type:varchar(255)" json:"reference,omitempty"`
	GatewayResponse  json.RawMessage `gorm:"type:jsonb" json:"gateway_response,omitempty"`
	CardData         json.RawMessage `gorm:"type:jsonb" json:"card_data,omitempty"`
	CustomerData     json.RawMessage `gorm:"type:jsonb" json:"customer_data,omitempty"`
	ProcessedAt      *time.Time      `gorm:"index" json:"processed_at,omitempty"`
	CapturedAt       *time.Time      `json:"captured_at,omitempty"`
	RefundedAt       *time.Time      `json:"refunded_at,omitempty"`
	VoidedAt         *time.Time      `json:"voided_at,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`

	PaymentSession PaymentSession `gorm:"foreignKey:PaymentSessionID" json:"-"`
}

func (PaymentTransaction) TableName() string {
	return "clerk_payment_transactions"
}

func (t *PaymentTransaction) IsSuccessful() bool {
	switch t.Status {
	case "captured", "authorized", "completed":
		return true
	}
	return false
}

func (t *PaymentTransaction) IsFailed() bool {
	return t.Status == "failed"
}
