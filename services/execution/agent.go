package execution

import (
	"fmt"
	"log"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/sentiment"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Position sizing: fraction of free cash committed per entry signal
var sizingByAction = map[string]decimal.Decimal{
	analysis.ActionBuy:       decimal.NewFromFloat(0.10),
	analysis.ActionStrongBuy: decimal.NewFromFloat(0.20),
}

// SignalStopLoss marks fills triggered by the stop-loss sweep
const SignalStopLoss = "STOP_LOSS"

// Agent executes fills against the portfolio. Every fill mutates the cash
// row, the position row and the trade log in a single transaction so the
// cash balance always reconciles with the trade history.
type Agent struct {
	db             *gorm.DB
	knowledge      *sentiment.KnowledgeService // optional, nil skips signal logging
	commissionRate decimal.Decimal
	stopLossPct    decimal.Decimal
}

// NewAgent creates an execution agent. knowledge may be nil (backtests).
func NewAgent(db *gorm.DB, knowledge *sentiment.KnowledgeService, commissionRate, stopLossPct float64) *Agent {
	return &Agent{
		db:             db,
		knowledge:      knowledge,
		commissionRate: decimal.NewFromFloat(commissionRate),
		stopLossPct:    decimal.NewFromFloat(stopLossPct),
	}
}

// PriceAt returns the latest close for the ticker at or before the date
func (a *Agent) PriceAt(ticker string, at time.Time) (decimal.Decimal, error) {
	var quote models.Quote
	err := a.db.Where("ticker = ? AND date <= ?", ticker, at).
		Order("date DESC").
		First(&quote).Error
	if err == gorm.ErrRecordNotFound {
		return decimal.Zero, fmt.Errorf("no price for %s at %s", ticker, at.Format("2006-01-02"))
	}
	if err != nil {
		return decimal.Zero, err
	}
	return quote.Close, nil
}

// ExecuteBuy opens or adds to a position, sized by the signal type.
// Whole shares only; a fill the cash cannot cover is skipped with an error.
func (a *Agent) ExecuteBuy(ticker, signalType string, at time.Time, sentimentScore float64) (*models.Trade, error) {
	price, err := a.PriceAt(ticker, at)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("non-positive price for %s", ticker)
	}

	fraction, ok := sizingByAction[signalType]
	if !ok {
		fraction = sizingByAction[analysis.ActionBuy]
	}

	var trade *models.Trade
	err = a.db.Transaction(func(tx *gorm.DB) error {
		cash, err := lockPosition(tx, models.CashTicker)
		if err != nil {
			return fmt.Errorf("cash row missing, run init-db: %w", err)
		}

		budget := cash.Quantity.Mul(fraction)
		quantity := budget.Div(price).Floor()
		if !quantity.IsPositive() {
			return fmt.Errorf("budget %s buys no whole share of %s at %s",
				budget.StringFixed(2), ticker, price.StringFixed(2))
		}

		cost := price.Mul(quantity)
		commission := cost.Mul(a.commissionRate)
		total := cost.Add(commission)
		if total.GreaterThan(cash.Quantity) {
			return fmt.Errorf("insufficient cash: need %s, have %s",
				total.StringFixed(2), cash.Quantity.StringFixed(2))
		}

		if err := updateQuantity(tx, cash, cash.Quantity.Sub(total), cash.AvgEntryPrice, at); err != nil {
			return err
		}

		pos, err := lockPosition(tx, ticker)
		if err == gorm.ErrRecordNotFound {
			pos = &models.PortfolioPosition{Ticker: ticker}
			if err := tx.Create(pos).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		// Weighted average entry across the old and new lots
		newQty := pos.Quantity.Add(quantity)
		oldCost := pos.AvgEntryPrice.Mul(pos.Quantity)
		avgEntry := oldCost.Add(cost).Div(newQty)
		if err := updateQuantity(tx, pos, newQty, avgEntry, at); err != nil {
			return err
		}

		trade = &models.Trade{
			ExecutedAt:     at,
			Ticker:         ticker,
			Side:           models.SideBuy,
			Quantity:       quantity,
			Price:          price,
			Commission:     commission,
			SignalType:     signalType,
			TotalValue:     total,
			SentimentScore: sentimentScore,
		}
		return tx.Create(trade).Error
	})
	if err != nil {
		return nil, err
	}

	a.logSignal(trade)
	log.Printf("BUY %s: %s shares at %s (%s signal)",
		ticker, trade.Quantity.String(), trade.Price.StringFixed(2), signalType)
	return trade, nil
}

// ExecuteSell closes the full position for the ticker
func (a *Agent) ExecuteSell(ticker, signalType string, at time.Time, sentimentScore float64) (*models.Trade, error) {
	price, err := a.PriceAt(ticker, at)
	if err != nil {
		return nil, err
	}

	var trade *models.Trade
	err = a.db.Transaction(func(tx *gorm.DB) error {
		pos, err := lockPosition(tx, ticker)
		if err == gorm.ErrRecordNotFound {
			return fmt.Errorf("no position in %s to sell", ticker)
		}
		if err != nil {
			return err
		}
		if !pos.Quantity.IsPositive() {
			return fmt.Errorf("no position in %s to sell", ticker)
		}

		revenue := price.Mul(pos.Quantity)
		commission := revenue.Mul(a.commissionRate)
		net := revenue.Sub(commission)

		cash, err := lockPosition(tx, models.CashTicker)
		if err != nil {
			return fmt.Errorf("cash row missing, run init-db: %w", err)
		}
		if err := updateQuantity(tx, cash, cash.Quantity.Add(net), cash.AvgEntryPrice, at); err != nil {
			return err
		}

		trade = &models.Trade{
			ExecutedAt:     at,
			Ticker:         ticker,
			Side:           models.SideSell,
			Quantity:       pos.Quantity,
			Price:          price,
			Commission:     commission,
			SignalType:     signalType,
			TotalValue:     net,
			SentimentScore: sentimentScore,
		}
		if err := tx.Create(trade).Error; err != nil {
			return err
		}

		return tx.Delete(pos).Error
	})
	if err != nil {
		return nil, err
	}

	a.logSignal(trade)
	log.Printf("SELL %s: %s shares at %s (%s signal)",
		ticker, trade.Quantity.String(), trade.Price.StringFixed(2), signalType)
	return trade, nil
}

// CheckStopLosses closes every position whose price at the given time has
// fallen below the stop threshold relative to its average entry.
func (a *Agent) CheckStopLosses(at time.Time) ([]*models.Trade, error) {
	var positions []models.PortfolioPosition
	err := a.db.Where("ticker != ? AND quantity > 0", models.CashTicker).Find(&positions).Error
	if err != nil {
		return nil, err
	}

	var closed []*models.Trade
	for _, pos := range positions {
		price, err := a.PriceAt(pos.Ticker, at)
		if err != nil {
			log.Printf("Stop-loss check skipped for %s: %v", pos.Ticker, err)
			continue
		}

		threshold := pos.AvgEntryPrice.Mul(decimal.NewFromInt(1).Sub(a.stopLossPct))
		if price.GreaterThanOrEqual(threshold) {
			continue
		}

		log.Printf("Stop-loss hit for %s: price %s below threshold %s",
			pos.Ticker, price.StringFixed(2), threshold.StringFixed(2))
		trade, err := a.ExecuteSell(pos.Ticker, SignalStopLoss, at, 0)
		if err != nil {
			log.Printf("Stop-loss sell failed for %s: %v", pos.Ticker, err)
			continue
		}
		closed = append(closed, trade)
	}
	return closed, nil
}

// ResetPortfolio clears every non-cash position and restores the cash row
// to the given balance. Used before backtests.
func (a *Agent) ResetPortfolio(initialCash decimal.Decimal) error {
	return a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("ticker != ?", models.CashTicker).
			Delete(&models.PortfolioPosition{}).Error; err != nil {
			return err
		}

		cash, err := lockPosition(tx, models.CashTicker)
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&models.PortfolioPosition{
				Ticker:      models.CashTicker,
				Quantity:    initialCash,
				LastUpdated: time.Now(),
			}).Error
		}
		if err != nil {
			return err
		}
		return updateQuantity(tx, cash, initialCash, decimal.Zero, time.Now())
	})
}

func (a *Agent) logSignal(trade *models.Trade) {
	if a.knowledge == nil || trade == nil {
		return
	}
	content := fmt.Sprintf("%s %s %s shares of %s at %s (%s)",
		trade.Side, trade.SignalType, trade.Quantity.String(),
		trade.Ticker, trade.Price.StringFixed(2), trade.ExecutedAt.Format("2006-01-02"))
	if _, err := a.knowledge.Append(trade.Ticker, models.EventTypeTradeSignal, content, trade.ExecutedAt); err != nil {
		log.Printf("Warning: could not log trade signal for %s: %v", trade.Ticker, err)
	}
}

func lockPosition(tx *gorm.DB, ticker string) (*models.PortfolioPosition, error) {
	var pos models.PortfolioPosition
	err := tx.Where("ticker = ?", ticker).First(&pos).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

func updateQuantity(tx *gorm.DB, pos *models.PortfolioPosition, qty, avgEntry decimal.Decimal, at time.Time) error {
	if qty.IsNegative() {
		return fmt.Errorf("quantity for %s would go negative", pos.Ticker)
	}
	return tx.Model(pos).Updates(map[string]interface{}{
		"quantity":        qty,
		"avg_entry_price": avgEntry,
		"last_updated":    at,
	}).Error
}
