package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quote represents one daily bar for a tracked ticker, together with the
// rolling statistics the analyst consumes. One row per ticker per trading day.
type Quote struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Ticker       string          `gorm:"index:idx_ticker_date,unique;not null" json:"ticker"`
	Date         time.Time       `gorm:"index:idx_ticker_date,unique;not null" json:"date"`
	Close        decimal.Decimal `gorm:"type:decimal(15,4)" json:"close"`
	Volume       int64           `json:"volume"`
	SMA5         decimal.Decimal `gorm:"column:sma_5;type:decimal(15,6)" json:"sma_5"`
	Volatility5  decimal.Decimal `gorm:"column:volatility_5;type:decimal(15,6)" json:"volatility_5"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(&Quote{})
}
