package services

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"prahsys_clerk/internal/models"
)

// newTestDB opens an isolated in-memory database migrated with the full
// schema. Each test gets its own named database so parallel tests never
// share state.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}

func createTestSession(t *testing.T, db *gorm.DB, sessionID string, status models.SessionStatus) *models.PaymentSession {
	t.Helper()

	expiresAt := time.Now().Add(time.Hour)
	session := models.PaymentSession{
		SessionID:  sessionID,
		PaymentID:  "pay_" + sessionID,
		MerchantID: "merch_test",
		Status:     status,
		Amount:     decimal.RequireFromString("100.50"),
		Currency:   "USD",
		ExpiresAt:  &expiresAt,
	}
	if err := db.Create(&session).Error; err != nil {
		t.Fatalf("create test session: %v", err)
	}
	return &session
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()

	var count int64
	q := db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	if err := q.Count(&count).Error; err != nil {
		t.Fatalf("count rows: %v", err)
	}
	return count
}
