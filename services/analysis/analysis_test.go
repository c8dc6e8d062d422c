package analysis

import (
	"fmt"
	"testing"
	"time"

	"lse_trading_system/models"

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
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// seedQuote inserts one quote with explicit indicator values
func seedQuote(t *testing.T, db *gorm.DB, ticker string, day int, close, sma5, vol5 float64) {
	t.Helper()
	q := models.Quote{
		Ticker:      ticker,
		Date:        time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC),
		Close:       decimal.NewFromFloat(close),
		Volume:      1000,
		SMA5:        decimal.NewFromFloat(sma5),
		Volatility5: decimal.NewFromFloat(vol5),
	}
	if err := db.Create(&q).Error; err != nil {
		t.Fatalf("seed quote: %v", err)
	}
}

// seedHistory seeds 5 quotes ending on day 5 with the given latest close and
// SMA. Earlier days carry neutral values so only the latest bar drives the
// decision; all bars share the same volatility so the ratio gate stays at 1.
func seedHistory(t *testing.T, db *gorm.DB, ticker string, latestClose, latestSMA float64) {
	t.Helper()
	for day := 1; day <= 4; day++ {
		seedQuote(t, db, ticker, day, 100, 100, 0.01)
	}
	seedQuote(t, db, ticker, 5, latestClose, latestSMA, 0.01)
}

func asOf(day int) time.Time {
	return time.Date(2024, 3, day, 23, 0, 0, 0, time.UTC)
}

func TestSMA(t *testing.T) {
	closes := []decimal.Decimal{
		decimal.NewFromInt(10),
		decimal.NewFromInt(20),
		decimal.NewFromInt(30),
	}
	got := SMA(closes)
	if !got.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("SMA = %s, want 20", got)
	}

	if !SMA(nil).IsZero() {
		t.Fatalf("SMA of empty input should be zero")
	}
}

func TestVolatilityConstantSeries(t *testing.T) {
	closes := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(100),
		decimal.NewFromInt(100),
	}
	if !Volatility(closes).IsZero() {
		t.Fatalf("volatility of a flat series should be zero")
	}
}

func TestVolatilityAlternatingSeries(t *testing.T) {
	// Returns are +10% and -9.0909..%, stddev is half their spread
	closes := []decimal.Decimal{
		decimal.NewFromInt(100),
		decimal.NewFromInt(110),
		decimal.NewFromInt(100),
	}
	got, _ := Volatility(closes).Float64()
	want := 0.0954545454
	if diff := got - want; diff > 1e-6 || diff < -1e-6 {
		t.Fatalf("volatility = %f, want about %f", got, want)
	}

	if !Volatility(closes[:1]).IsZero() {
		t.Fatalf("volatility of a single close should be zero")
	}
}

func TestDecideNeedsFiveQuotes(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedQuote(t, db, "MSFT", 1, 100, 100, 0.01)

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionHold {
		t.Fatalf("action = %s, want HOLD with short history", d.Action)
	}
}

func TestDecideBuy(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 103, 100) // momentum +3%

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionBuy {
		t.Fatalf("action = %s (%s), want BUY", d.Action, d.Reason)
	}
	if !d.IsBuy() {
		t.Fatalf("IsBuy should be true for BUY")
	}
}

func TestDecideStrongBuy(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 106, 100) // momentum +6%

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionStrongBuy {
		t.Fatalf("action = %s (%s), want STRONG_BUY", d.Action, d.Reason)
	}
}

func TestDecideSell(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 97, 100) // momentum -3%

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionSell {
		t.Fatalf("action = %s (%s), want SELL", d.Action, d.Reason)
	}
}

func TestDecideHoldInNeutralBand(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 101, 100) // momentum +1%

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionHold {
		t.Fatalf("action = %s (%s), want HOLD", d.Action, d.Reason)
	}
}

func TestDecideVolatilitySpikeBlocksBuy(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	for day := 1; day <= 4; day++ {
		seedQuote(t, db, "MSFT", day, 100, 100, 0.01)
	}
	// Momentum says buy, but today's volatility is five times the average
	seedQuote(t, db, "MSFT", 5, 103, 100, 0.05)

	d, err := a.Decide("MSFT", asOf(5), 0)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionHold {
		t.Fatalf("action = %s (%s), want HOLD under volatility spike", d.Action, d.Reason)
	}
}

func TestDecideSentimentVetoesBuy(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 103, 100)

	d, err := a.Decide("MSFT", asOf(5), -0.5)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionHold {
		t.Fatalf("action = %s (%s), want HOLD under negative sentiment", d.Action, d.Reason)
	}
}

func TestDecideSentimentUpgradesBuy(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 103, 100)

	d, err := a.Decide("MSFT", asOf(5), 0.5)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionStrongBuy {
		t.Fatalf("action = %s (%s), want STRONG_BUY under positive sentiment", d.Action, d.Reason)
	}
}

func TestDecideSentimentDoesNotFlipSell(t *testing.T) {
	db := newTestDB(t)
	a := NewAnalyst(db)
	seedHistory(t, db, "MSFT", 97, 100)

	d, err := a.Decide("MSFT", asOf(5), 0.9)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Action != ActionSell {
		t.Fatalf("action = %s, positive sentiment must not override a SELL", d.Action)
	}
}
