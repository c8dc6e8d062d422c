package models

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	return db
}

func TestSeedCashPositionIdempotent(t *testing.T) {
	db := newTestDB(t)
	if err := MigratePortfolioModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := SeedCashPosition(db, decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	// Second seed with a different amount must not overwrite the balance
	if err := SeedCashPosition(db, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	var rows []PortfolioPosition
	if err := db.Where("ticker = ?", CashTicker).Find(&rows).Error; err != nil {
		t.Fatalf("load cash: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("cash rows = %d, want 1", len(rows))
	}
	if !rows[0].Quantity.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("cash = %s, reseed must not change it", rows[0].Quantity)
	}
}

func TestAdminUserPasswordRoundTrip(t *testing.T) {
	u := &AdminUser{Username: "ops"}
	if err := u.SetPassword("hunter2hunter2"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if u.PasswordHash == "hunter2hunter2" {
		t.Fatalf("password stored in clear")
	}
	if !u.CheckPassword("hunter2hunter2") {
		t.Fatalf("correct password rejected")
	}
	if u.CheckPassword("wrong") {
		t.Fatalf("wrong password accepted")
	}
}

func TestSeedAdminUserRefusesEmptyPassword(t *testing.T) {
	db := newTestDB(t)
	if err := MigrateAdminModels(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	if err := SeedAdminUser(db, "admin", ""); err == nil {
		t.Fatalf("expected error seeding with empty password")
	}

	if err := SeedAdminUser(db, "admin", "s3cret-pass"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Existing account wins over new credentials
	if err := SeedAdminUser(db, "other", "different"); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	var users []AdminUser
	if err := db.Find(&users).Error; err != nil {
		t.Fatalf("load users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "admin" {
		t.Fatalf("unexpected users after reseed: %+v", users)
	}
}
