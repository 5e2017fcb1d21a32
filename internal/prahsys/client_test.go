package prahsys

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"prahsys_clerk/internal/config"
)

func testAPIConfig(url string, maxRetries int) config.APIConfig {
	return config.APIConfig{
		SandboxMode:    true,
		SandboxURL:     url,
		ProductionURL:  url,
		SandboxAPIKey:  "sk_sandbox_test_key",
		MerchantID:     "merch_test",
		Timeout:        5 * time.Second,
		ConnectTimeout: time.Second,
		MaxRetries:     maxRetries,
		RetryDelay:     time.Millisecond,
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc, maxRetries int) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(testAPIConfig(server.URL, maxRetries))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	cfg := testAPIConfig("https://sandbox-api.prahsys.com", 3)
	cfg.SandboxAPIKey = ""

	_, err := NewClient(cfg)
	var cfgErr *config.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("NewClient() error = %v, want ConfigurationError", err)
	}
	if cfgErr.Field != "sandbox_api_key" {
		t.Errorf("Field = %q, want sandbox_api_key", cfgErr.Field)
	}
}

func TestSendServerErrorExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	maxRetries := 3

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"api_error","code":"internal_error","message":"upstream broke"}}`))
	}, maxRetries)

	_, err := client.Send(context.Background(), Operation{Method: http.MethodGet, Path: "/ping"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if apiErr.Code != "max_retries_exceeded" {
		t.Errorf("Code = %q, want max_retries_exceeded", apiErr.Code)
	}
	if apiErr.Details["last_error"] != "upstream broke" {
		t.Errorf("last_error = %v, want upstream broke", apiErr.Details["last_error"])
	}
	if got := attempts.Load(); got != int32(maxRetries) {
		t.Errorf("attempts = %d, want exactly %d", got, maxRetries)
	}
}

func TestSendClientErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"type":"validation_error","code":"invalid_amount","message":"Amount must be positive"}}`))
	}, 3)

	_, err := client.Send(context.Background(), Operation{Method: http.MethodPost, Path: "/x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if !apiErr.IsValidationError() {
		t.Errorf("Type = %q, want validation_error", apiErr.Type)
	}
	if apiErr.Code != "invalid_amount" {
		t.Errorf("Code = %q, want invalid_amount", apiErr.Code)
	}
	if apiErr.Status != http.StatusUnprocessableEntity {
		t.Errorf("Status = %d, want 422", apiErr.Status)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 for client error", got)
	}
}

func TestSendRateLimitIsRetried(t *testing.T) {
	var attempts atomic.Int32
	maxRetries := 3

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"rate_limit_exceeded","message":"Too many requests"}}`))
	}, maxRetries)

	_, err := client.Send(context.Background(), Operation{Method: http.MethodGet, Path: "/x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if apiErr.Code != "max_retries_exceeded" {
		t.Errorf("Code = %q, want max_retries_exceeded", apiErr.Code)
	}
	if got := attempts.Load(); got != int32(maxRetries) {
		t.Errorf("attempts = %d, want %d", got, maxRetries)
	}
}

func TestSendRecoversAfterTransientFailures(t *testing.T) {
	var attempts atomic.Int32

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":{"type":"api_error","code":"unavailable","message":"try later"}}`))
			return
		}
		w.Write([]byte(`{"data":{"id":"sess_ok","status":"CREATED"}}`))
	}, 3)

	resp, err := client.Send(context.Background(), Operation{Method: http.MethodGet, Path: "/x"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	var session SessionResource
	if err := resp.Decode(&session); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if session.ID != "sess_ok" {
		t.Errorf("session id = %q, want sess_ok", session.ID)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestSendNetworkErrorSurfacesAsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client, err := NewClient(testAPIConfig(serverURL, 2))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.Send(context.Background(), Operation{Method: http.MethodGet, Path: "/x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if apiErr.Code != "max_retries_exceeded" {
		t.Errorf("Code = %q, want max_retries_exceeded after retrying the network failure", apiErr.Code)
	}
}

func TestSendContextCancellation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Send(ctx, Operation{Method: http.MethodGet, Path: "/x"})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Send() error = %v, want APIError", err)
	}
	if !apiErr.IsNetworkError() {
		t.Errorf("Type = %q, want network_error for canceled context", apiErr.Type)
	}
}

func TestSendSetsAuthAndContentHeaders(t *testing.T) {
	var gotAuth, gotContentType, gotPath string

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotPath = r.URL.Path
		w.Write([]byte(`{"data":{"id":"sess_1","status":"CREATED"}}`))
	}, 3)

	if _, err := client.CreateSession(context.Background(), PaymentData{ID: "pay_1"}, nil); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if gotAuth != "Bearer sk_sandbox_test_key" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if gotPath != "/payments/n1/merchant/merch_test/session" {
		t.Errorf("path = %q, want merchant session path", gotPath)
	}
}

func TestErrorFromResponseDefaults(t *testing.T) {
	apiErr := errorFromResponse(http.StatusBadGateway, []byte("not json at all"))
	if apiErr.Type != "api_error" || apiErr.Code != "unknown_error" {
		t.Errorf("got %s/%s, want api_error/unknown_error", apiErr.Type, apiErr.Code)
	}
	if apiErr.Status != http.StatusBadGateway {
		t.Errorf("Status = %d, want 502", apiErr.Status)
	}
	if !apiErr.IsRetryable() {
		t.Error("5xx error should be retryable")
	}
}

func TestDecodeRejectsMissingData(t *testing.T) {
	resp := &Response{Status: http.StatusOK, Body: []byte(`{"something":"else"}`)}
	var session SessionResource
	if err := resp.Decode(&session); err == nil {
		t.Error("Decode() accepted envelope without data")
	}
}
