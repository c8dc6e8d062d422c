package execution

import (
	"fmt"
	"testing"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/analysis"

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
	if err := models.MigrateMarketModels(db); err != nil {
		t.Fatalf("migrate market models: %v", err)
	}
	if err := models.MigratePortfolioModels(db); err != nil {
		t.Fatalf("migrate portfolio models: %v", err)
	}
	if err := models.SeedCashPosition(db, decimal.NewFromInt(100000)); err != nil {
		t.Fatalf("seed cash: %v", err)
	}
	return db
}

func seedClose(t *testing.T, db *gorm.DB, ticker string, day int, close float64) time.Time {
	t.Helper()
	date := time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC)
	q := models.Quote{Ticker: ticker, Date: date, Close: decimal.NewFromFloat(close)}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("seed quote: %v", err)
	}
	return date
}

func cashBalance(t *testing.T, db *gorm.DB) decimal.Decimal {
	t.Helper()
	var cash models.PortfolioPosition
	if err := db.Where("ticker = ?", models.CashTicker).First(&cash).Error; err != nil {
		t.Fatalf("load cash row: %v", err)
	}
	return cash.Quantity
}

func TestExecuteBuySizesTenPercent(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	at := seedClose(t, db, "MSFT", 10, 100)

	trade, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, at, 0.1)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}

	// 10% of 100000 buys 100 whole shares at 100
	if !trade.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("quantity = %s, want 100", trade.Quantity)
	}
	if !trade.Commission.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("commission = %s, want 15", trade.Commission)
	}
	if !trade.TotalValue.Equal(decimal.NewFromInt(10015)) {
		t.Fatalf("total value = %s, want 10015", trade.TotalValue)
	}

	if got := cashBalance(t, db); !got.Equal(decimal.NewFromInt(89985)) {
		t.Fatalf("cash = %s, want 89985", got)
	}

	var pos models.PortfolioPosition
	if err := db.Where("ticker = ?", "MSFT").First(&pos).Error; err != nil {
		t.Fatalf("load position: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("position quantity = %s, want 100", pos.Quantity)
	}
	if !pos.AvgEntryPrice.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("avg entry = %s, want 100", pos.AvgEntryPrice)
	}
}

func TestExecuteBuyStrongSignalSizesTwentyPercent(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	at := seedClose(t, db, "MSFT", 10, 100)

	trade, err := agent.ExecuteBuy("MSFT", analysis.ActionStrongBuy, at, 0)
	if err != nil {
		t.Fatalf("ExecuteBuy: %v", err)
	}
	if !trade.Quantity.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("quantity = %s, want 200", trade.Quantity)
	}
}

func TestExecuteBuyAveragesEntryAcrossLots(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0, 0.05)
	seedClose(t, db, "MSFT", 10, 100)
	at2 := seedClose(t, db, "MSFT", 11, 110)

	// First buy: 100 shares at 100. Second: 10% of 90000 at 110 -> 81 shares.
	if _, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), 0); err != nil {
		t.Fatalf("first buy: %v", err)
	}
	if _, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, at2, 0); err != nil {
		t.Fatalf("second buy: %v", err)
	}

	var pos models.PortfolioPosition
	if err := db.Where("ticker = ?", "MSFT").First(&pos).Error; err != nil {
		t.Fatalf("load position: %v", err)
	}
	if !pos.Quantity.Equal(decimal.NewFromInt(181)) {
		t.Fatalf("position quantity = %s, want 181", pos.Quantity)
	}

	// (100*100 + 81*110) / 181
	wantAvg := decimal.NewFromInt(18910).Div(decimal.NewFromInt(181))
	if !pos.AvgEntryPrice.Sub(wantAvg).Abs().LessThan(decimal.NewFromFloat(0.0001)) {
		t.Fatalf("avg entry = %s, want %s", pos.AvgEntryPrice, wantAvg)
	}
}

func TestExecuteBuyRejectsWhenBudgetBuysNoShare(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	at := seedClose(t, db, "PRICY", 10, 20000)

	// 10% of 100000 is 10000, below one share
	if _, err := agent.ExecuteBuy("PRICY", analysis.ActionBuy, at, 0); err == nil {
		t.Fatalf("expected error when budget buys no whole share")
	}

	if got := cashBalance(t, db); !got.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("cash changed on rejected buy: %s", got)
	}
	var count int64
	db.Model(&models.Trade{}).Count(&count)
	if count != 0 {
		t.Fatalf("trade recorded for rejected buy")
	}
}

func TestExecuteBuyWithoutPriceFails(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)

	_, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, time.Now(), 0)
	if err == nil {
		t.Fatalf("expected error with no stored price")
	}
}

func TestExecuteSellClosesPosition(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	buyAt := seedClose(t, db, "MSFT", 10, 100)
	sellAt := seedClose(t, db, "MSFT", 11, 110)

	if _, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, buyAt, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}

	trade, err := agent.ExecuteSell("MSFT", analysis.ActionSell, sellAt, 0)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if !trade.Quantity.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("sell quantity = %s, want full position of 100", trade.Quantity)
	}

	// 100 shares at 110 = 11000, commission 16.5, net 10983.5
	if !trade.TotalValue.Equal(decimal.NewFromFloat(10983.5)) {
		t.Fatalf("net proceeds = %s, want 10983.5", trade.TotalValue)
	}
	if got := cashBalance(t, db); !got.Equal(decimal.NewFromFloat(100968.5)) {
		t.Fatalf("cash = %s, want 100968.5", got)
	}

	err = db.Where("ticker = ?", "MSFT").First(&models.PortfolioPosition{}).Error
	if err != gorm.ErrRecordNotFound {
		t.Fatalf("position row should be deleted after full close, got %v", err)
	}
}

func TestExecuteSellWithoutPositionFails(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	at := seedClose(t, db, "MSFT", 10, 100)

	if _, err := agent.ExecuteSell("MSFT", analysis.ActionSell, at, 0); err == nil {
		t.Fatalf("expected error selling with no position")
	}
}

func TestCheckStopLosses(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0, 0.05)
	buyAt := seedClose(t, db, "MSFT", 10, 100)

	if _, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, buyAt, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}

	// 96 is above the 95 threshold, nothing closes
	holdAt := seedClose(t, db, "MSFT", 11, 96)
	closed, err := agent.CheckStopLosses(holdAt)
	if err != nil {
		t.Fatalf("CheckStopLosses: %v", err)
	}
	if len(closed) != 0 {
		t.Fatalf("stop-loss fired above threshold")
	}

	// 94 breaches the threshold
	stopAt := seedClose(t, db, "MSFT", 12, 94)
	closed, err = agent.CheckStopLosses(stopAt)
	if err != nil {
		t.Fatalf("CheckStopLosses: %v", err)
	}
	if len(closed) != 1 {
		t.Fatalf("expected 1 stop-loss close, got %d", len(closed))
	}
	if closed[0].SignalType != SignalStopLoss {
		t.Fatalf("signal type = %s, want %s", closed[0].SignalType, SignalStopLoss)
	}
}

func TestResetPortfolio(t *testing.T) {
	db := newTestDB(t)
	agent := NewAgent(db, nil, 0.0015, 0.05)
	at := seedClose(t, db, "MSFT", 10, 100)

	if _, err := agent.ExecuteBuy("MSFT", analysis.ActionBuy, at, 0); err != nil {
		t.Fatalf("buy: %v", err)
	}

	if err := agent.ResetPortfolio(decimal.NewFromInt(50000)); err != nil {
		t.Fatalf("ResetPortfolio: %v", err)
	}

	if got := cashBalance(t, db); !got.Equal(decimal.NewFromInt(50000)) {
		t.Fatalf("cash = %s, want 50000", got)
	}
	var count int64
	db.Model(&models.PortfolioPosition{}).Where("ticker != ?", models.CashTicker).Count(&count)
	if count != 0 {
		t.Fatalf("non-cash positions survived reset")
	}
}
