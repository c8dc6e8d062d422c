package analysis

import (
	"fmt"
	"math"
	"time"

	"lse_trading_system/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Analyst provides indicator calculations over the quotes table
type Analyst struct {
	db *gorm.DB
}

// NewAnalyst creates a new analyst instance
func NewAnalyst(db *gorm.DB) *Analyst {
	return &Analyst{db: db}
}

// SMA calculates the simple moving average of the given closes
func SMA(closes []decimal.Decimal) decimal.Decimal {
	if len(closes) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, c := range closes {
		sum = sum.Add(c)
	}
	return sum.Div(decimal.NewFromInt(int64(len(closes))))
}

// Volatility calculates the standard deviation of day-over-day returns for
// the given closes, oldest first. Fewer than two closes yields zero.
func Volatility(closes []decimal.Decimal) decimal.Decimal {
	if len(closes) < 2 {
		return decimal.Zero
	}

	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		prev, _ := closes[i-1].Float64()
		cur, _ := closes[i].Float64()
		if prev == 0 {
			continue
		}
		returns = append(returns, (cur-prev)/prev)
	}
	if len(returns) == 0 {
		return decimal.Zero
	}

	var mean float64
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	var variance float64
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns))

	return decimal.NewFromFloat(math.Sqrt(variance))
}

// LastQuotes returns up to n quotes for the ticker at or before asOf,
// newest first.
func (a *Analyst) LastQuotes(ticker string, asOf time.Time, n int) ([]models.Quote, error) {
	var quotes []models.Quote
	err := a.db.Where("ticker = ? AND date <= ?", ticker, asOf).
		Order("date DESC").
		Limit(n).
		Find(&quotes).Error
	if err != nil {
		return nil, err
	}
	return quotes, nil
}

// AverageVolatility20 returns the mean of the stored 5-day volatility over
// the last 20 trading days at or before asOf.
func (a *Analyst) AverageVolatility20(ticker string, asOf time.Time) (decimal.Decimal, error) {
	quotes, err := a.LastQuotes(ticker, asOf, 20)
	if err != nil {
		return decimal.Zero, err
	}
	if len(quotes) == 0 {
		return decimal.Zero, fmt.Errorf("no quotes for %s", ticker)
	}

	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.Volatility5)
	}
	return sum.Div(decimal.NewFromInt(int64(len(quotes)))), nil
}
