package prahsys

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PaymentData describes the payment being created or processed.
type PaymentData struct {
	ID          string          `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	Description string          `json:"description,omitempty"`
}

// SessionData references an existing gateway session.
type SessionData struct {
	ID string `json:"id"`
}

type MerchantData struct {
	Name string `json:"name"`
	Logo string `json:"logo,omitempty"`
}

// PortalConfigurationData configures a hosted-checkout (Pay Portal)
// session.
type PortalConfigurationData struct {
	Operation string       `json:"operation"`
	ReturnURL string       `json:"returnUrl"`
	CancelURL string       `json:"cancelUrl"`
	Merchant  MerchantData `json:"merchant"`
}

type AddressData struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

type CustomerData struct {
	Email   string       `json:"email,omitempty"`
	Name    string       `json:"name,omitempty"`
	Phone   string       `json:"phone,omitempty"`
	Address *AddressData `json:"address,omitempty"`
}

// CardData is the card summary the gateway exposes; never a PAN.
type CardData struct {
	Last4 string `json:"last4,omitempty"`
	Brand string `json:"brand,omitempty"`
}

type portalResource struct {
	SuccessIndicator string `json:"successIndicator,omitempty"`
}

// SessionResource is the gateway's representation of a session.
type SessionResource struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Customer    *CustomerData   `json:"customer,omitempty"`
	Card        *CardData       `json:"card,omitempty"`
	CompletedAt string          `json:"completedAt,omitempty"`
	Portal      *portalResource `json:"portal,omitempty"`
}

// SuccessIndicator returns the portal success indicator when present.
func (r *SessionResource) SuccessIndicator() string {
	if r.Portal == nil {
		return ""
	}
	return r.Portal.SuccessIndicator
}

// TransactionResource is the gateway's representation of a settled
// operation.
type TransactionResource struct {
	ID          string          `json:"id"`
	Status      string          `json:"status"`
	Payment     *paymentRef     `json:"payment,omitempty"`
	Card        json.RawMessage `json:"card,omitempty"`
	Customer    json.RawMessage `json:"customer,omitempty"`
	ProcessedAt string          `json:"processedAt,omitempty"`
}

type paymentRef struct {
	Reference string `json:"reference,omitempty"`
}

// Reference returns the payment reference when present.
func (r *TransactionResource) Reference() string {
	if r.Payment == nil {
		return ""
	}
	return r.Payment.Reference
}

type createSessionBody struct {
	Payment PaymentData              `json:"payment"`
	Portal  *PortalConfigurationData `json:"portal,omitempty"`
}

type updateSessionBody struct {
	Payment PaymentData `json:"payment"`
}

type processPaymentBody struct {
	Payment PaymentData `json:"payment"`
	Session SessionData `json:"session"`
}

type capturePaymentBody struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

type refundPaymentBody struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}
