// Package testutil opens throwaway ledger databases for tests.
package testutil

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"tournament-ledger/models"
)

// NewDB returns a migrated in-memory SQLite database private to t. It holds
// a single connection, so transactions run one at a time; row locks are not
// emitted by the SQLite dialect.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func Money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// SeedAccount creates an account for userID holding balance.
func SeedAccount(t testing.TB, db *gorm.DB, userID, balance string) *models.Account {
	t.Helper()
	acct := &models.Account{
		ID:       uuid.NewString(),
		UserID:   userID,
		Balance:  Money(balance),
		Currency: "INR",
	}
	if err := db.Create(acct).Error; err != nil {
		t.Fatalf("seed account %s: %v", userID, err)
	}
	return acct
}

// SeedMatch creates an open match. Zero fields get solo defaults.
func SeedMatch(t testing.TB, db *gorm.DB, m models.Match) *models.Match {
	t.Helper()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Title == "" {
		m.Title = "Match " + m.ID[:8]
	}
	if m.Slug == "" {
		m.Slug = "match-" + m.ID
	}
	if m.Mode == "" {
		m.Mode = models.ModeSolo
	}
	if m.TeamSize == 0 {
		m.TeamSize = 1
	}
	if err := db.Create(&m).Error; err != nil {
		t.Fatalf("seed match: %v", err)
	}
	return &m
}

// SeedProfile creates a player profile.
func SeedProfile(t testing.TB, db *gorm.DB, userID string, banned bool) *models.PlayerProfile {
	t.Helper()
	p := &models.PlayerProfile{
		ID:             uuid.NewString(),
		ExternalUserID: userID,
		Username:       userID,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed profile: %v", err)
	}
	if banned {
		if err := db.Model(p).Update("is_banned", true).Error; err != nil {
			t.Fatalf("ban profile: %v", err)
		}
	}
	return p
}

// Balance reads the stored balance of userID.
func Balance(t testing.TB, db *gorm.DB, userID string) decimal.Decimal {
	t.Helper()
	var acct models.Account
	if err := db.Where("user_id = ?", userID).Take(&acct).Error; err != nil {
		t.Fatalf("load account %s: %v", userID, err)
	}
	return acct.Balance
}

// CountEntries counts ledger entries of userID, optionally of one kind.
func CountEntries(t testing.TB, db *gorm.DB, userID string, kind models.EntryKind) int64 {
	t.Helper()
	q := db.Model(&models.LedgerEntry{}).Where("user_id = ?", userID)
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count entries: %v", err)
	}
	return n
}
