package prahsys

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"prahsys_clerk/internal/config"
)

// Operation encodes one gateway call: method, path relative to the base
// URL, and an optional JSON body.
type Operation struct {
	Method string
	Path   string
	Body   any
}

// Response is a decoded-enough gateway reply. Bodies are small JSON
// documents, so they are buffered whole.
type Response struct {
	Status int
	Body   []byte
}

type dataEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// Decode unmarshals the response's `data` object into v.
func (r *Response) Decode(v any) error {
	var envelope dataEnvelope
	if err := json.Unmarshal(r.Body, &envelope); err != nil {
		return fmt.Errorf("decode response envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return fmt.Errorf("response has no data object")
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// Client talks to the Prahsys gateway with bounded retries. Calls block
// the caller during backoff; there is no background work.
type Client struct {
	baseURL    string
	apiKey     string
	merchantID string
	maxRetries int
	retryDelay time.Duration
	httpClient *http.Client
}

// NewClient resolves the base URL and credential for the active mode and
// fails fast with a ConfigurationError when the credential is absent.
func NewClient(cfg config.APIConfig) (*Client, error) {
	apiKey, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	baseURL := cfg.BaseURL()
	if baseURL == "" {
		return nil, &config.ConfigurationError{Field: "base_url", Reason: "API base URLs must be configured"}
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		merchantID: cfg.MerchantID,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: cfg.ConnectTimeout}).DialContext,
			},
		},
	}, nil
}

// Send performs the operation, retrying retryable failures up to the
// configured ceiling with exponential backoff (retryDelay * 2^(attempt-1)).
// Client errors (4xx) surface immediately; exhausting the ceiling returns
// an APIError with code max_retries_exceeded.
func (c *Client) Send(ctx context.Context, op Operation) (*Response, error) {
	var lastErr *APIError

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		resp, err := c.do(ctx, op)
		if err == nil && resp.Status < 400 {
			return resp, nil
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, networkError(ctx.Err())
			}
			lastErr = networkError(err)
		} else {
			lastErr = errorFromResponse(resp.Status, resp.Body)
		}

		if !lastErr.IsRetryable() {
			return nil, lastErr
		}

		if attempt < c.maxRetries {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, networkError(err)
			}
		}
	}

	exhausted := &APIError{
		Type:    "api_error",
		Code:    "max_retries_exceeded",
		Message: "Maximum retry attempts exceeded",
	}
	if lastErr != nil {
		exhausted.Status = lastErr.Status
		exhausted.Details = map[string]any{"last_error": lastErr.Message}
	}
	return nil, exhausted
}

func (c *Client) do(ctx context.Context, op Operation) (*Response, error) {
	var bodyReader io.Reader
	if op.Body != nil {
		data, err := json.Marshal(op.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, op.Method, c.baseURL+op.Path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	return &Response{Status: resp.StatusCode, Body: body}, nil
}

func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.retryDelay * time.Duration(1<<(attempt-1))
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) merchantPath(suffix string) string {
	return fmt.Sprintf("/payments/n1/merchant/%s%s", c.merchantID, suffix)
}

// CreateSession creates an embedded or hosted payment session.
func (c *Client) CreateSession(ctx context.Context, payment PaymentData, portal *PortalConfigurationData) (*SessionResource, error) {
	resp, err := c.Send(ctx, Operation{
		Method: http.MethodPost,
		Path:   c.merchantPath("/session"),
		Body:   createSessionBody{Payment: payment, Portal: portal},
	})
	if err != nil {
		return nil, err
	}
	var session SessionResource
	if err := resp.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSession fetches the current gateway state of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionResource, error) {
	resp, err := c.Send(ctx, Operation{
		Method: http.MethodGet,
		Path:   c.merchantPath("/session/" + sessionID),
	})
	if err != nil {
		return nil, err
	}
	var session SessionResource
	if err := resp.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// UpdateSession replaces the payment details on an existing session.
func (c *Client) UpdateSession(ctx context.Context, sessionID string, payment PaymentData) (*SessionResource, error) {
	resp, err := c.Send(ctx, Operation{
		Method: http.MethodPut,
		Path:   c.merchantPath("/session/" + sessionID),
		Body:   updateSessionBody{Payment: payment},
	})
	if err != nil {
		return nil, err
	}
	var session SessionResource
	if err := resp.Decode(&session); err != nil {
		return nil, err
	}
	return &session, nil
}

// ProcessPayment runs a payment against a session.
func (c *Client) ProcessPayment(ctx context.Context, paymentID string, payment PaymentData, session SessionData) (*TransactionResource, error) {
	return c.sendTransaction(ctx, "/payment/"+paymentID+"/pay", processPaymentBody{Payment: payment, Session: session})
}

// CapturePayment captures a previously authorized payment. A nil amount
// captures the full authorized amount.
func (c *Client) CapturePayment(ctx context.Context, paymentID string, amount *decimal.Decimal) (*TransactionResource, error) {
	return c.sendTransaction(ctx, "/payment/"+paymentID+"/capture", capturePaymentBody{Amount: amount})
}

// RefundPayment refunds a captured payment, optionally partially.
func (c *Client) RefundPayment(ctx context.Context, paymentID string, amount *decimal.Decimal, reason string) (*TransactionResource, error) {
	return c.sendTransaction(ctx, "/payment/"+paymentID+"/refund", refundPaymentBody{Amount: amount, Reason: reason})
}

// VoidPayment voids an authorized but uncaptured payment.
func (c *Client) VoidPayment(ctx context.Context, paymentID string) (*TransactionResource, error) {
	return c.sendTransaction(ctx, "/payment/"+paymentID+"/void", nil)
}

func (c *Client) sendTransaction(ctx context.Context, suffix string, body any) (*TransactionResource, error) {
	resp, err := c.Send(ctx, Operation{
		Method: http.MethodPost,
		Path:   c.merchantPath(suffix),
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	var tx TransactionResource
	if err := resp.Decode(&tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
