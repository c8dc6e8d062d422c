package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CashTicker is the reserved ticker value for the cash balance row.
// Cash is modeled as a position so the portfolio table is self-contained.
const CashTicker = "CASH"

// Trade sides
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// PortfolioPosition is the current holding for one instrument. One row per
// held ticker; the CASH row carries the free balance in its quantity column.
type PortfolioPosition struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Ticker        string          `gorm:"uniqueIndex;not null" json:"ticker"`
	Quantity      decimal.Decimal `gorm:"type:decimal(20,6)" json:"quantity"`
	AvgEntryPrice decimal.Decimal `gorm:"type:decimal(15,4)" json:"avg_entry_price"`
	LastUpdated   time.Time       `json:"last_updated"`
}

// Trade is one executed fill. Append-only; the portfolio table is derived
// from this history plus the initial cash seed.
type Trade struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	ExecutedAt     time.Time       `gorm:"index" json:"executed_at"`
	Ticker         string          `gorm:"index" json:"ticker"`
	Side           string          `gorm:"not null" json:"side"` // BUY, SELL
	Quantity       decimal.Decimal `gorm:"type:decimal(20,6)" json:"quantity"`
	Price          decimal.Decimal `gorm:"type:decimal(15,4)" json:"price"`
	Commission     decimal.Decimal `gorm:"type:decimal(15,4)" json:"commission"`
	SignalType     string          `json:"signal_type"`
	TotalValue     decimal.Decimal `gorm:"type:decimal(20,4)" json:"total_value"`
	SentimentScore float64         `json:"sentiment_score"`
}

// MigratePortfolioModels runs database migrations for portfolio models
func MigratePortfolioModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&PortfolioPosition{},
		&Trade{},
	)
}

// SeedCashPosition creates the CASH row if it does not exist yet.
// Re-running is a no-op so init-db stays idempotent.
func SeedCashPosition(db *gorm.DB, initialCash decimal.Decimal) error {
	var existing PortfolioPosition
	err := db.Where("ticker = ?", CashTicker).First(&existing).Error
	if err == nil {
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	cash := PortfolioPosition{
		Ticker:      CashTicker,
		Quantity:    initialCash,
		LastUpdated: time.Now(),
	}
	return db.Create(&cash).Error
}
