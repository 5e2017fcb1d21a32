package prahsys

import (
	"encoding/json"
	"fmt"
)

// APIError is an upstream gateway error carrying the error object the
// gateway returned plus the HTTP status, which together determine
// retryability.
type APIError struct {
	Type    string         `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Status  int            `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("prahsys: %s (%s): %s", e.Type, e.Code, e.Message)
}

func (e *APIError) IsAuthenticationError() bool {
	return e.Type == "authentication_error"
}

func (e *APIError) IsValidationError() bool {
	return e.Type == "validation_error"
}

func (e *APIError) IsRateLimitError() bool {
	return e.Code == "rate_limit_exceeded"
}

func (e *APIError) IsNetworkError() bool {
	return e.Type == "network_error"
}

// IsRetryable reports whether the client may retry the call: rate limits,
// network failures and server-side errors only.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimitError() || e.IsNetworkError() || e.Status >= 500
}

type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// errorFromResponse builds an APIError from a non-2xx gateway response
// body, falling back to an unknown error when the body carries no error
// object.
func errorFromResponse(status int, body []byte) *APIError {
	var envelope errorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		apiErr := envelope.Error
		if apiErr.Type == "" {
			apiErr.Type = "api_error"
		}
		if apiErr.Code == "" {
			apiErr.Code = "unknown_error"
		}
		if apiErr.Message == "" {
			apiErr.Message = "An unknown error occurred"
		}
		apiErr.Status = status
		return apiErr
	}
	return &APIError{
		Type:    "api_error",
		Code:    "unknown_error",
		Message: "An unknown error occurred",
		Status:  status,
	}
}

func networkError(err error) *APIError {
	return &APIError{
		Type:    "network_error",
		Code:    "connection_failed",
		Message: err.Error(),
	}
}
