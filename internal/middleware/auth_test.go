package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRequireAPIKey(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		header     string
		wantStatus int
	}{
		{
			name:       "valid key",
			configured: "clerk_secret_key",
			header:     "Bearer clerk_secret_key",
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			configured: "clerk_secret_key",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			configured: "clerk_secret_key",
			header:     "Bearer wrong_key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong scheme",
			configured: "clerk_secret_key",
			header:     "Basic clerk_secret_key",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no key configured passes through",
			configured: "",
			header:     "",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/clerk/statistics", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			handler := RequireAPIKey(tt.configured)(func(c echo.Context) error {
				return c.NoContent(http.StatusOK)
			})

			err := handler(c)
			status := rec.Code
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					t.Fatalf("handler error = %v", err)
				}
			}
			if status != tt.wantStatus {
				t.Errorf("status = %d, want %d", status, tt.wantStatus)
			}
		})
	}
}
