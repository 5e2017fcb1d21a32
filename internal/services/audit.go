package services

import (
	"encoding/json"
	"log"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"prahsys_clerk/internal/models"
)

// sensitiveFields are redacted from audit snapshots.
var sensitiveFields = map[string]struct{}{
	"password":    {},
	"api_key":     {},
	"secret":      {},
	"token":       {},
	"card_number": {},
	"cvv":         {},
	"ssn":         {},
	"credit_card": {},
}

var cardNumberPattern = regexp.MustCompile(`^\d{13,19}$`)

// AuditLogger is an explicit audit sink handed to write paths. When
// disabled it drops everything; audit failures are logged, never
// propagated into the domain flow.
type AuditLogger struct {
	db      *gorm.DB
	enabled bool
}

func NewAuditLogger(db *gorm.DB, enabled bool) *AuditLogger {
	return &AuditLogger{db: db, enabled: enabled}
}

// Log appends one audit row. Values maps are sanitized before storage.
func (a *AuditLogger) Log(kind models.AuditEntityKind, entityID uint, eventType string, oldValues, newValues, metadata map[string]any) {
	if a == nil || !a.enabled || a.db == nil {
		return
	}

	entry := models.AuditLog{
		EntityKind: kind,
		EntityID:   entityID,
		EventType:  eventType,
		OldValues:  marshalValues(SanitizeValues(oldValues)),
		NewValues:  marshalValues(SanitizeValues(newValues)),
		Metadata:   marshalValues(metadata),
	}

	if err := a.db.Create(&entry).Error; err != nil {
		log.Printf("audit log write failed for %s/%d: %v", kind, entityID, err)
	}
}

// LogStatusChange records a status transition on an entity.
func (a *AuditLogger) LogStatusChange(kind models.AuditEntityKind, entityID uint, from, to string, metadata map[string]any) {
	a.Log(kind, entityID, "status_changed",
		map[string]any{"status": from},
		map[string]any{"status": to},
		metadata)
}

// LogCreated records the creation of an entity with its initial values.
func (a *AuditLogger) LogCreated(kind models.AuditEntityKind, entityID uint, values map[string]any) {
	a.Log(kind, entityID, "created", nil, values, nil)
}

// SanitizeValues redacts credential-like keys and anything that looks
// like a card number.
func SanitizeValues(values map[string]any) map[string]any {
	if len(values) == 0 {
		return nil
	}

	out := make(map[string]any, len(values))
	for key, value := range values {
		if _, ok := sensitiveFields[strings.ToLower(key)]; ok {
			out[key] = "[REDACTED]"
			continue
		}
		if s, ok := value.(string); ok && cardNumberPattern.MatchString(s) {
			out[key] = "[CARD_NUMBER_REDACTED]"
			continue
		}
		out[key] = value
	}
	return out
}

func marshalValues(values map[string]any) json.RawMessage {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	return data
}
