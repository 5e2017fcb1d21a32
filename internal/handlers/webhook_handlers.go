package handlers

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"prahsys_clerk/internal/services"
)

type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// HandleWebhook ingests a gateway notification. The signature is checked
// against the raw body, so the body must be read before any binding.
// Reconciliation is asynchronous; a 200 only acknowledges receipt.
func (h *WebhookHandler) HandleWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	signature := c.Request().Header.Get(services.SignatureHeader)

	event, err := h.webhooks.Receive(c.Request().Context(), body, signature)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"event_id": event.EventID,
		"message":  "Webhook received",
	})
}
