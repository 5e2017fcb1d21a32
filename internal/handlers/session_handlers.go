package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"prahsys_clerk/internal/models"
	"prahsys_clerk/internal/prahsys"
	"prahsys_clerk/internal/services"
)

type SessionHandler struct {
	manager *services.SessionManager
}

func NewSessionHandler(manager *services.SessionManager) *SessionHandler {
	return &SessionHandler{manager: manager}
}

// CreateSession creates an embedded or hosted-checkout session.
func (h *SessionHandler) CreateSession(c echo.Context) error {
	var req CreateSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.PaymentID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "payment_id is required")
	}
	if !req.Amount.IsPositive() {
		return echo.NewHTTPError(http.StatusBadRequest, "amount must be positive")
	}

	input := services.CreateSessionInput{
		PaymentID:   req.PaymentID,
		Amount:      req.Amount,
		Description: req.Description,
		Currency:    req.Currency,
		Metadata:    req.Metadata,
	}
	if req.Portal != nil {
		if req.Portal.ReturnURL == "" || req.Portal.CancelURL == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "portal return_url and cancel_url are required")
		}
		operation := req.Portal.Operation
		if operation == "" {
			operation = "PAY"
		}
		input.Portal = &prahsys.PortalConfigurationData{
			Operation: operation,
			ReturnURL: req.Portal.ReturnURL,
			CancelURL: req.Portal.CancelURL,
			Merchant: prahsys.MerchantData{
				Name: req.Portal.MerchantName,
				Logo: req.Portal.MerchantLogo,
			},
		}
	}

	session, err := h.manager.CreateSession(c.Request().Context(), input)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, map[string]any{"success": true, "session": session})
}

// GetSession returns the stored session, optionally refreshing it from
// the gateway first (?sync=true).
func (h *SessionHandler) GetSession(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	if c.QueryParam("sync") == "true" {
		if err := h.manager.SyncSessionStatus(c.Request().Context(), session); err != nil {
			return err
		}
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "session": session})
}

// ProcessPayment runs the payment for the session's full amount.
func (h *SessionHandler) ProcessPayment(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	tx, err := h.manager.ProcessPayment(c.Request().Context(), session)
	if err != nil {
		return err
	}

	return h.transactionResponse(c, session, tx)
}

// CapturePayment captures an authorized payment, optionally partially.
func (h *SessionHandler) CapturePayment(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	var req CaptureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	tx, err := h.manager.CapturePayment(c.Request().Context(), session, req.Amount)
	if err != nil {
		return err
	}

	return h.transactionResponse(c, session, tx)
}

// RefundPayment refunds a captured payment, optionally partially.
func (h *SessionHandler) RefundPayment(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	var req RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	tx, err := h.manager.RefundPayment(c.Request().Context(), session, req.Amount, req.Reason)
	if err != nil {
		return err
	}

	return h.transactionResponse(c, session, tx)
}

// VoidPayment voids an authorized but uncaptured payment.
func (h *SessionHandler) VoidPayment(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	tx, err := h.manager.VoidPayment(c.Request().Context(), session)
	if err != nil {
		return err
	}

	return h.transactionResponse(c, session, tx)
}

// VerifyPortalPayment checks a hosted-checkout return indicator. A
// mismatch is a 200 with verified=false, not an error; the caller
// decides how to present it.
func (h *SessionHandler) VerifyPortalPayment(c echo.Context) error {
	session, err := h.manager.GetBySessionID(c.Request().Context(), c.Param("session_id"))
	if err != nil {
		return err
	}

	var req VerifyPortalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}
	if req.ResultIndicator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "result_indicator is required")
	}

	verified, err := h.manager.VerifyPortalPayment(c.Request().Context(), session, req.ResultIndicator)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{
		"success":  true,
		"verified": verified,
		"session":  session,
	})
}

// GetStatistics aggregates session counts over an optional RFC 3339
// start/end window.
func (h *SessionHandler) GetStatistics(c echo.Context) error {
	var start, end *time.Time
	if raw := c.QueryParam("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start must be RFC 3339")
		}
		start = &parsed
	}
	if raw := c.QueryParam("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end must be RFC 3339")
		}
		end = &parsed
	}

	stats, err := h.manager.GetSessionStatistics(c.Request().Context(), start, end)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, map[string]any{"success": true, "statistics": stats})
}

func (h *SessionHandler) transactionResponse(c echo.Context, session *models.PaymentSession, tx *models.PaymentTransaction) error {
	return c.JSON(http.StatusOK, map[string]any{
		"success":     true,
		"transaction": tx,
		"session":     session,
	})
}
