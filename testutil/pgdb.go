package testutil

import (
	"os"
	"testing"
	"time"

	"gorm.io/gorm"

	"tournament-ledger/models"
	"tournament-ledger/utils"
)

// NewPostgresDB opens the Postgres database named by TEST_DATABASE_URL with
// a real connection pool, so concurrent transactions take FOR UPDATE row
// locks instead of queueing on one connection. It skips t when the variable
// is unset. Rows are not cleaned up; callers use unique ids.
func NewPostgresDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := utils.OpenDB(utils.DBOptions{
		Driver:          "postgres",
		DSN:             dsn,
		MaxIdleConns:    4,
		MaxOpenConns:    16,
		ConnMaxLifetime: time.Minute,
		ConnMaxIdleTime: time.Minute,
	})
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
