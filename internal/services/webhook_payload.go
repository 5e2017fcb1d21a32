package services

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// webhookPayload is the typed shape of a gateway notification. The
// gateway nests the subject of the event under data.object; older
// payloads carry session_id at the top level.
type webhookPayload struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Data      struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// payloadObject is the event subject (a payment or session resource).
type payloadObject struct {
	ID        string           `json:"id"`
	Status    string           `json:"status"`
	SessionID string           `json:"session_id"`
	Amount    *decimal.Decimal `json:"amount"`
	Currency  string           `json:"currency"`
	Reference string           `json:"reference"`
	Card      json.RawMessage  `json:"card"`
	Customer  json.RawMessage  `json:"customer"`
}

func parseWebhookPayload(raw []byte) (*webhookPayload, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse webhook payload: %w", err)
	}
	return &payload, nil
}

// object decodes data.object when present. A missing object is not an
// error; handlers fall back to session fields.
func (p *webhookPayload) object() (*payloadObject, error) {
	if len(p.Data.Object) == 0 {
		return nil, nil
	}
	var obj payloadObject
	if err := json.Unmarshal(p.Data.Object, &obj); err != nil {
		return nil, fmt.Errorf("parse payload object: %w", err)
	}
	return &obj, nil
}

// sessionID resolves the session correlation id: data.object.session_id
// first, then the top-level field.
func (p *webhookPayload) sessionID() string {
	if obj, err := p.object(); err == nil && obj != nil && obj.SessionID != "" {
		return obj.SessionID
	}
	return p.SessionID
}
