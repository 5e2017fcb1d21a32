package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"prahsys_clerk/internal/config"
	"prahsys_clerk/internal/prahsys"
	"prahsys_clerk/internal/services"
)

// CustomErrorHandler creates a custom error handler for Echo. Every
// error surfaces as `{"success": false, "error": "..."}` with a status
// derived from the error's kind.
func CustomErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	var httpErr *echo.HTTPError
	var apiErr *prahsys.APIError
	var cfgErr *config.ConfigurationError

	switch {
	case errors.Is(err, services.ErrWebhookVerification):
		code = http.StatusUnauthorized
		message = "Webhook verification failed"

	case errors.Is(err, gorm.ErrRecordNotFound):
		code = http.StatusNotFound
		message = "Resource not found"

	case errors.As(err, &apiErr):
		// Gateway client errors carry the upstream status; everything
		// retryable or upstream-5xx is our bad gateway.
		if apiErr.Status >= 400 && apiErr.Status < 500 && !apiErr.IsRetryable() {
			code = apiErr.Status
		} else {
			code = http.StatusBadGateway
		}
		message = apiErr.Message

	case errors.As(err, &cfgErr):
		message = "Service misconfigured"

	case errors.As(err, &httpErr):
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok && msg != "" {
			message = msg
		} else {
			message = http.StatusText(code)
		}
	}

	c.Logger().Error(err)

	if c.Request().Method == http.MethodHead {
		if err := c.NoContent(code); err != nil {
			c.Logger().Error(err)
		}
		return
	}

	if err := c.JSON(code, map[string]any{"success": false, "error": message}); err != nil {
		c.Logger().Error(err)
	}
}
