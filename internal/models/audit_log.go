package models

import (
	"encoding/json"
	"time"
)

// AuditEntityKind discriminates which entity an audit row refers to.
type AuditEntityKind string

const (
	AuditEntityPaymentSession     AuditEntityKind = "payment_session"
	AuditEntityPaymentTransaction AuditEntityKind = "payment_transaction"
	AuditEntityWebhookEvent       AuditEntityKind = "webhook_event"
)

// AuditLog is an append-only record of a state change on an auditable
// entity. Never updated or interpreted by the domain.
type AuditLog struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	EntityKind AuditEntityKind `gorm:"type:varchar(40);index:idx_audit_entity;not null" json:"entity_kind"`
	EntityID   uint            `gorm:"index:idx_audit_entity;not null" json:"entity_id"`
	EventType  string          `gorm:"type:varchar(50);index" json:"event_type"`
	OldValues  json.RawMessage `gorm:"type:jsonb" json:"old_values,omitempty"`
	NewValues  json.RawMessage `gorm:"type:jsonb" json:"new_values,omitempty"`
	Metadata   json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time       `gorm:"index" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "clerk_audit_logs"
}

func (l *AuditLog) HasChanges() bool {
	return len(l.OldValues) > 0 || len(l.NewValues) > 0
}
