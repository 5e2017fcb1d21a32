package handlers

import (
	"github.com/shopspring/decimal"
)

// CreateSessionRequest is the body for POST /clerk/sessions. Presence of
// Portal makes it a hosted-checkout session.
type CreateSessionRequest struct {
	PaymentID   string               `json:"payment_id"`
	Amount      decimal.Decimal      `json:"amount"`
	Currency    string               `json:"currency"`
	Description string               `json:"description"`
	Portal      *PortalConfigRequest `json:"portal,omitempty"`
	Metadata    map[string]any       `json:"metadata,omitempty"`
}

// PortalConfigRequest configures hosted checkout for a new session.
type PortalConfigRequest struct {
	ReturnURL    string `json:"return_url"`
	CancelURL    string `json:"cancel_url"`
	MerchantName string `json:"merchant_name"`
	MerchantLogo string `json:"merchant_logo,omitempty"`
	Operation    string `json:"operation,omitempty"`
}

// CaptureRequest optionally narrows the capture to a partial amount.
type CaptureRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// RefundRequest optionally narrows the refund and records a reason.
type RefundRequest struct {
	Amount *decimal.Decimal `json:"amount,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// VerifyPortalRequest carries the result indicator from the hosted
// checkout return redirect.
type VerifyPortalRequest struct {
	ResultIndicator string `json:"result_indicator"`
}
