package services

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"prahsys_clerk/internal/models"
	"prahsys_clerk/internal/prahsys"
)

// sessionTTL is how long a freshly created session stays payable.
const sessionTTL = time.Hour

// SessionManager owns the payment session lifecycle: creation against
// the gateway, status sync, and the capture/refund/void operations with
// their durable transaction rows.
type SessionManager struct {
	db         *gorm.DB
	client     *prahsys.Client
	audit      *AuditLogger
	merchantID string
}

func NewSessionManager(db *gorm.DB, client *prahsys.Client, audit *AuditLogger, merchantID string) *SessionManager {
	return &SessionManager{db: db, client: client, audit: audit, merchantID: merchantID}
}

// CreateSessionInput collects the caller-supplied fields for a new
// session. Currency defaults to USD.
type CreateSessionInput struct {
	PaymentID   string
	Amount      decimal.Decimal
	Description string
	Currency    string
	Portal      *prahsys.PortalConfigurationData
	Metadata    map[string]any
}

// CreateSession creates a session at the gateway and persists the local
// row with status created and a one hour expiry.
func (m *SessionManager) CreateSession(ctx context.Context, input CreateSessionInput) (*models.PaymentSession, error) {
	currency := input.Currency
	if currency == "" {
		currency = "USD"
	}

	resource, err := m.client.CreateSession(ctx, prahsys.PaymentData{
		ID:          input.PaymentID,
		Amount:      input.Amount,
		Currency:    currency,
		Description: input.Description,
	}, input.Portal)
	if err != nil {
		return nil, fmt.Errorf("create gateway session: %w", err)
	}

	expiresAt := time.Now().Add(sessionTTL)
	session := models.PaymentSession{
		SessionID:           resource.ID,
		PaymentID:           input.PaymentID,
		MerchantID:          m.merchantID,
		Status:              models.SessionStatusCreated,
		Amount:              input.Amount,
		Currency:            currency,
		Description:         input.Description,
		PortalConfiguration: marshalValues(portalValues(input.Portal)),
		SuccessIndicator:    resource.SuccessIndicator(),
		Metadata:            marshalValues(input.Metadata),
		ExpiresAt:           &expiresAt,
	}

	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("persist payment session: %w", err)
	}

	m.audit.LogCreated(models.AuditEntityPaymentSession, session.ID, map[string]any{
		"session_id": session.SessionID,
		"payment_id": session.PaymentID,
		"status":     string(session.Status),
		"amount":     session.Amount.String(),
		"currency":   session.Currency,
	})
	return &session, nil
}

// CreatePortalSession creates a hosted-checkout session with the given
// return/cancel URLs and merchant branding.
func (m *SessionManager) CreatePortalSession(ctx context.Context, paymentID string, amount decimal.Decimal, description, returnURL, cancelURL, merchantName, merchantLogo string, metadata map[string]any) (*models.PaymentSession, error) {
	portal := &prahsys.PortalConfigurationData{
		Operation: "PAY",
		ReturnURL: returnURL,
		CancelURL: cancelURL,
		Merchant: prahsys.MerchantData{
			Name: merchantName,
			Logo: merchantLogo,
		},
	}
	return m.CreateSession(ctx, CreateSessionInput{
		PaymentID:   paymentID,
		Amount:      amount,
		Description: description,
		Portal:      portal,
		Metadata:    metadata,
	})
}

// GetBySessionID loads a session by its gateway-issued id.
func (m *SessionManager) GetBySessionID(ctx context.Context, sessionID string) (*models.PaymentSession, error) {
	var session models.PaymentSession
	if err := m.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// SyncSessionStatus pulls the gateway's view of the session and updates
// the local status, customer and card fields. A gateway failure leaves
// the row untouched and is returned to the caller.
func (m *SessionManager) SyncSessionStatus(ctx context.Context, session *models.PaymentSession) error {
	resource, err := m.client.GetSession(ctx, session.SessionID)
	if err != nil {
		return fmt.Errorf("fetch gateway session %s: %w", session.SessionID, err)
	}

	previous := session.Status
	updates := map[string]any{
		"status": models.SessionStatus(strings.ToLower(resource.Status)),
	}
	if resource.Customer != nil {
		if resource.Customer.Email != "" {
			updates["customer_email"] = resource.Customer.Email
		}
		if resource.Customer.Name != "" {
			updates["customer_name"] = resource.Customer.Name
		}
	}
	if resource.Card != nil {
		if resource.Card.Last4 != "" {
			updates["card_last4"] = resource.Card.Last4
		}
		if resource.Card.Brand != "" {
			updates["card_brand"] = resource.Card.Brand
		}
	}
	if resource.CompletedAt != "" {
		if completedAt, err := time.Parse(time.RFC3339, resource.CompletedAt); err == nil {
			updates["completed_at"] = &completedAt
			session.CompletedAt = &completedAt
		}
	}

	if err := m.db.WithContext(ctx).Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("update session %s: %w", session.SessionID, err)
	}
	session.Status = updates["status"].(models.SessionStatus)

	if previous != session.Status {
		m.audit.LogStatusChange(models.AuditEntityPaymentSession, session.ID, string(previous), string(session.Status),
			map[string]any{"source": "sync"})
	}
	return nil
}

// ProcessPayment runs the payment for the session's full amount and
// records the resulting transaction. The session status follows the
// gateway's transaction status; CompletedAt is set only on success.
func (m *SessionManager) ProcessPayment(ctx context.Context, session *models.PaymentSession) (*models.PaymentTransaction, error) {
	resource, err := m.client.ProcessPayment(ctx, session.PaymentID,
		prahsys.PaymentData{
			ID:          session.PaymentID,
			Amount:      session.Amount,
			Currency:    session.Currency,
			Description: session.Description,
		},
		prahsys.SessionData{ID: session.SessionID},
	)
	if err != nil {
		return nil, fmt.Errorf("process payment for session %s: %w", session.SessionID, err)
	}

	tx, err := m.recordTransaction(ctx, session, resource, models.TransactionTypePayment, "")
	if err != nil {
		return nil, err
	}

	status := models.SessionStatus(strings.ToLower(resource.Status))
	if err := m.transitionSession(ctx, session, status, tx.IsSuccessful()); err != nil {
		return nil, err
	}
	return tx, nil
}

// CapturePayment captures an authorized payment. A nil amount captures
// the full authorized amount. The session moves to captured with
// CompletedAt set.
func (m *SessionManager) CapturePayment(ctx context.Context, session *models.PaymentSession, amount *decimal.Decimal) (*models.PaymentTransaction, error) {
	resource, err := m.client.CapturePayment(ctx, session.PaymentID, amount)
	if err != nil {
		return nil, fmt.Errorf("capture payment for session %s: %w", session.SessionID, err)
	}

	tx, err := m.recordTransaction(ctx, session, resource, models.TransactionTypeCapture, "")
	if err != nil {
		return nil, err
	}
	if err := m.transitionSession(ctx, session, models.SessionStatusCaptured, true); err != nil {
		return nil, err
	}
	return tx, nil
}

// RefundPayment refunds a captured payment, optionally partially. The
// session status is left as is; the refund transaction carries the
// history.
func (m *SessionManager) RefundPayment(ctx context.Context, session *models.PaymentSession, amount *decimal.Decimal, reason string) (*models.PaymentTransaction, error) {
	resource, err := m.client.RefundPayment(ctx, session.PaymentID, amount, reason)
	if err != nil {
		return nil, fmt.Errorf("refund payment for session %s: %w", session.SessionID, err)
	}
	return m.recordTransaction(ctx, session, resource, models.TransactionTypeRefund, reason)
}

// VoidPayment voids an authorized but uncaptured payment and moves the
// session to voided.
func (m *SessionManager) VoidPayment(ctx context.Context, session *models.PaymentSession) (*models.PaymentTransaction, error) {
	resource, err := m.client.VoidPayment(ctx, session.PaymentID)
	if err != nil {
		return nil, fmt.Errorf("void payment for session %s: %w", session.SessionID, err)
	}

	tx, err := m.recordTransaction(ctx, session, resource, models.TransactionTypeVoid, "")
	if err != nil {
		return nil, err
	}
	if err := m.transitionSession(ctx, session, models.SessionStatusVoided, false); err != nil {
		return nil, err
	}
	return tx, nil
}

// VerifyPortalPayment checks a hosted-checkout return against the
// success indicator captured at session creation. Comparison is exact
// and case sensitive. On a match the session is marked verified and the
// result indicator is stored.
func (m *SessionManager) VerifyPortalPayment(ctx context.Context, session *models.PaymentSession, resultIndicator string) (bool, error) {
	if !session.IsPortalSession() || session.SuccessIndicator == "" {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(session.SuccessIndicator), []byte(resultIndicator)) != 1 {
		return false, nil
	}

	previous := session.Status
	updates := map[string]any{
		"status":           models.SessionStatusVerified,
		"result_indicator": resultIndicator,
	}
	if err := m.db.WithContext(ctx).Model(session).Updates(updates).Error; err != nil {
		return false, fmt.Errorf("mark session %s verified: %w", session.SessionID, err)
	}
	session.Status = models.SessionStatusVerified
	session.ResultIndicator = resultIndicator

	m.audit.LogStatusChange(models.AuditEntityPaymentSession, session.ID, string(previous), string(models.SessionStatusVerified),
		map[string]any{"source": "portal_return"})
	return true, nil
}

// CleanupExpiredSessions expires sessions that were never paid: past
// their expiry and still in created. Returns the number of rows moved.
func (m *SessionManager) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).
		Model(&models.PaymentSession{}).
		Where("expires_at < ? AND status = ?", time.Now(), models.SessionStatusCreated).
		Update("status", models.SessionStatusExpired)
	if res.Error != nil {
		return 0, fmt.Errorf("expire stale sessions: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		log.Printf("expired %d stale payment sessions", res.RowsAffected)
	}
	return res.RowsAffected, nil
}

// SessionStatistics aggregates session counts and completed volume over
// an optional creation-time window.
type SessionStatistics struct {
	TotalSessions     int64           `json:"total_sessions"`
	CompletedSessions int64           `json:"completed_sessions"`
	FailedSessions    int64           `json:"failed_sessions"`
	ExpiredSessions   int64           `json:"expired_sessions"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	PortalSessions    int64           `json:"portal_sessions"`
	EmbeddedSessions  int64           `json:"embedded_sessions"`
}

// GetSessionStatistics computes the counts the original reporting
// surface exposed. Completed means captured or authorized; TotalAmount
// sums only completed sessions.
func (m *SessionManager) GetSessionStatistics(ctx context.Context, start, end *time.Time) (*SessionStatistics, error) {
	completedStatuses := []models.SessionStatus{models.SessionStatusCaptured, models.SessionStatusAuthorized}

	base := func() *gorm.DB {
		q := m.db.WithContext(ctx).Model(&models.PaymentSession{})
		if start != nil {
			q = q.Where("created_at >= ?", *start)
		}
		if end != nil {
			q = q.Where("created_at <= ?", *end)
		}
		return q
	}

	stats := SessionStatistics{TotalAmount: decimal.Zero}

	if err := base().Count(&stats.TotalSessions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status IN ?", completedStatuses).Count(&stats.CompletedSessions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.SessionStatusFailed).Count(&stats.FailedSessions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("status = ?", models.SessionStatusExpired).Count(&stats.ExpiredSessions).Error; err != nil {
		return nil, err
	}
	if err := base().Where("portal_configuration IS NOT NULL").Count(&stats.PortalSessions).Error; err != nil {
		return nil, err
	}
	stats.EmbeddedSessions = stats.TotalSessions - stats.PortalSessions

	var amount decimal.NullDecimal
	err := base().Where("status IN ?", completedStatuses).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&amount).Error
	if err != nil {
		return nil, err
	}
	if amount.Valid {
		stats.TotalAmount = amount.Decimal
	}

	return &stats, nil
}

// recordTransaction persists one gateway transaction against the
// session, deriving the per-type timestamp from the operation.
func (m *SessionManager) recordTransaction(ctx context.Context, session *models.PaymentSession, resource *prahsys.TransactionResource, txType models.TransactionType, reason string) (*models.PaymentTransaction, error) {
	now := time.Now()
	processedAt := now
	if resource.ProcessedAt != "" {
		if parsed, err := time.Parse(time.RFC3339, resource.ProcessedAt); err == nil {
			processedAt = parsed
		}
	}

	status := strings.ToLower(resource.Status)
	if status == "" {
		status = "completed"
	}

	tx := models.PaymentTransaction{
		PaymentSessionID: session.ID,
		TransactionID:    resource.ID,
		Type:             txType,
		Status:           status,
		Amount:           session.Amount,
		Currency:         session.Currency,
		Reference:        resource.Reference(),
		GatewayResponse:  marshalResource(resource),
		CardData:         resource.Card,
		CustomerData:     resource.Customer,
		ProcessedAt:      &processedAt,
	}

	switch txType {
	case models.TransactionTypeCapture:
		tx.CapturedAt = &now
	case models.TransactionTypeRefund:
		tx.RefundedAt = &now
	case models.TransactionTypeVoid:
		tx.VoidedAt = &now
	}

	if err := m.db.WithContext(ctx).Create(&tx).Error; err != nil {
		return nil, fmt.Errorf("persist %s transaction for session %s: %w", txType, session.SessionID, err)
	}

	metadata := map[string]any{
		"transaction_id": tx.TransactionID,
		"type":           string(txType),
		"status":         tx.Status,
	}
	if reason != "" {
		metadata["reason"] = reason
	}
	m.audit.LogCreated(models.AuditEntityPaymentTransaction, tx.ID, metadata)

	return &tx, nil
}

func (m *SessionManager) transitionSession(ctx context.Context, session *models.PaymentSession, status models.SessionStatus, completed bool) error {
	previous := session.Status

	updates := map[string]any{"status": status}
	if completed {
		now := time.Now()
		updates["completed_at"] = &now
		session.CompletedAt = &now
	}

	if err := m.db.WithContext(ctx).Model(session).Updates(updates).Error; err != nil {
		return fmt.Errorf("update session %s status: %w", session.SessionID, err)
	}
	session.Status = status

	if previous != status {
		m.audit.LogStatusChange(models.AuditEntityPaymentSession, session.ID, string(previous), string(status),
			map[string]any{"source": "gateway"})
	}
	return nil
}

func portalValues(portal *prahsys.PortalConfigurationData) map[string]any {
	if portal == nil {
		return nil
	}
	data, err := json.Marshal(portal)
	if err != nil {
		return nil
	}
	var values map[string]any
	if err := json.Unmarshal(data, &values); err != nil {
		return nil
	}
	return values
}

func marshalResource(resource *prahsys.TransactionResource) json.RawMessage {
	data, err := json.Marshal(resource)
	if err != nil {
		return nil
	}
	return data
}
