// Package dbtest opens a migrated in-memory SQLite database for package tests.
package dbtest

import (
	"os"
	"testing"
	"time"

	config "github.com/anjiri1684/affiliate_ledger/configs"
	"github.com/anjiri1684/affiliate_ledger/database"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open returns a fresh database. It uses a single connection, so concurrent
// transactions run one after another whether or not the code under test
// takes row locks. Lock behaviour is only exercised by OpenPostgres.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		SkipDefaultTransaction:                   true,
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Discard,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// OpenPostgres connects to LEDGER_TEST_DATABASE_URL and migrates it. Tests
// that need real row locks use it; without the variable they are skipped.
func OpenPostgres(t testing.TB) *gorm.DB {
	t.Helper()
	url := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}

	db, err := database.ConnectDB(config.DatabaseConfig{URL: url, MaxConns: 10, MinConns: 2})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}
