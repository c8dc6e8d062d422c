package backtesting

import (
	"fmt"
	"log"
	"strings"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/execution"
	"lse_trading_system/services/reporting"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Quotes before this many trading days are skipped so the 5-day statistics
// have a full window behind them.
const warmupDays = 5

// Config holds backtest parameters
type Config struct {
	Tickers     []string
	StartDate   time.Time
	EndDate     time.Time
	InitialCash decimal.Decimal
}

// Result holds backtest outcomes
type Result struct {
	InitialCash        decimal.Decimal `json:"initial_cash"`
	FinalCash          decimal.Decimal `json:"final_cash"`
	OpenPositionsValue decimal.Decimal `json:"open_positions_value"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalPnL           decimal.Decimal `json:"total_pnl"`
	PnLPercent         decimal.Decimal `json:"pnl_percent"`
	ClosedPnL          decimal.Decimal `json:"closed_pnl"`
	WinRate            float64         `json:"win_rate"`
	MaxDrawdown        decimal.Decimal `json:"max_drawdown"`
	ClosedTradesCount  int             `json:"closed_trades_count"`
	TradesCount        int             `json:"trades_count"`
	DecisionsCount     int             `json:"decisions_count"`
	DatesProcessed     int             `json:"dates_processed"`
}

// Engine replays the analyst and execution agent over historical quotes.
// It trades against the live portfolio tables, so it resets them first;
// never point it at a database holding a real portfolio.
type Engine struct {
	db      *gorm.DB
	analyst *analysis.Analyst
	agent   *execution.Agent
}

// NewEngine creates a backtest engine
func NewEngine(db *gorm.DB, analyst *analysis.Analyst, agent *execution.Agent) *Engine {
	return &Engine{db: db, analyst: analyst, agent: agent}
}

// availableDates returns the distinct quote dates for the ticker within the
// range, oldest first.
func (e *Engine) availableDates(ticker string, start, end time.Time) ([]time.Time, error) {
	var dates []time.Time
	err := e.db.Model(&models.Quote{}).
		Where("ticker = ? AND date >= ? AND date <= ?", ticker, start, end).
		Order("date ASC").
		Distinct().
		Pluck("date", &dates).Error
	return dates, err
}

// Run executes the backtest
func (e *Engine) Run(cfg *Config) (*Result, error) {
	if len(cfg.Tickers) == 0 {
		return nil, fmt.Errorf("no tickers given")
	}

	log.Printf("Backtest starting: tickers=%v period=%s..%s capital=%s",
		cfg.Tickers,
		cfg.StartDate.Format("2006-01-02"), cfg.EndDate.Format("2006-01-02"),
		cfg.InitialCash.StringFixed(2))

	if err := e.agent.ResetPortfolio(cfg.InitialCash); err != nil {
		return nil, fmt.Errorf("failed to reset portfolio: %w", err)
	}

	// Dates are taken from the first ticker; the pack of tickers is assumed
	// to share trading days.
	dates, err := e.availableDates(cfg.Tickers[0], cfg.StartDate, cfg.EndDate)
	if err != nil {
		return nil, err
	}
	if len(dates) == 0 {
		return nil, fmt.Errorf("no quotes for %s in range", cfg.Tickers[0])
	}
	log.Printf("Backtest found %d trading days", len(dates))

	result := &Result{InitialCash: cfg.InitialCash}
	maxEquity := cfg.InitialCash
	var lastDate time.Time

	for i, date := range dates {
		if i < warmupDays {
			continue
		}
		lastDate = date

		for _, ticker := range cfg.Tickers {
			decision, err := e.analyst.Decide(ticker, date, 0)
			if err != nil {
				log.Printf("Backtest decision error for %s on %s: %v",
					ticker, date.Format("2006-01-02"), err)
				continue
			}
			result.DecisionsCount++

			switch {
			case decision.IsBuy():
				if _, err := e.agent.ExecuteBuy(ticker, decision.Action, date, 0); err == nil {
					result.TradesCount++
				}
			case decision.Action == analysis.ActionSell:
				if e.hasPosition(ticker) {
					if _, err := e.agent.ExecuteSell(ticker, decision.Action, date, 0); err == nil {
						result.TradesCount++
					}
				}
			}
		}

		closed, err := e.agent.CheckStopLosses(date)
		if err != nil {
			log.Printf("Backtest stop-loss error on %s: %v", date.Format("2006-01-02"), err)
		}
		result.TradesCount += len(closed)

		equity, err := e.equityAt(date)
		if err == nil {
			if equity.GreaterThan(maxEquity) {
				maxEquity = equity
			}
			if maxEquity.IsPositive() {
				drawdown := maxEquity.Sub(equity).Div(maxEquity)
				if drawdown.GreaterThan(result.MaxDrawdown) {
					result.MaxDrawdown = drawdown
				}
			}
		}
	}

	result.DatesProcessed = len(dates)
	if err := e.finalize(result, lastDate); err != nil {
		return nil, err
	}

	log.Printf("Backtest finished: %d decisions, %d trades, final value %s (PnL %s%%)",
		result.DecisionsCount, result.TradesCount,
		result.TotalValue.StringFixed(2), result.PnLPercent.StringFixed(2))
	return result, nil
}

func (e *Engine) hasPosition(ticker string) bool {
	var pos models.PortfolioPosition
	err := e.db.Where("ticker = ? AND quantity > 0", ticker).First(&pos).Error
	return err == nil
}

// equityAt values cash plus open positions at the date's closes
func (e *Engine) equityAt(date time.Time) (decimal.Decimal, error) {
	var positions []models.PortfolioPosition
	if err := e.db.Find(&positions).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, pos := range positions {
		if pos.Ticker == models.CashTicker {
			total = total.Add(pos.Quantity)
			continue
		}
		if !pos.Quantity.IsPositive() {
			continue
		}
		price, err := e.agent.PriceAt(pos.Ticker, date)
		if err != nil {
			continue
		}
		total = total.Add(price.Mul(pos.Quantity))
	}
	return total, nil
}

func (e *Engine) finalize(result *Result, lastDate time.Time) error {
	var cash models.PortfolioPosition
	err := e.db.Where("ticker = ?", models.CashTicker).First(&cash).Error
	if err != nil {
		return err
	}
	result.FinalCash = cash.Quantity

	var positions []models.PortfolioPosition
	err = e.db.Where("ticker != ? AND quantity > 0", models.CashTicker).Find(&positions).Error
	if err != nil {
		return err
	}
	for _, pos := range positions {
		price, err := e.agent.PriceAt(pos.Ticker, lastDate)
		if err != nil {
			continue
		}
		result.OpenPositionsValue = result.OpenPositionsValue.Add(price.Mul(pos.Quantity))
	}

	result.TotalValue = result.FinalCash.Add(result.OpenPositionsValue)
	result.TotalPnL = result.TotalValue.Sub(result.InitialCash)
	if result.InitialCash.IsPositive() {
		result.PnLPercent = result.TotalPnL.Div(result.InitialCash).Mul(decimal.NewFromInt(100))
	}

	var trades []models.Trade
	if err := e.db.Order("executed_at ASC, id ASC").Find(&trades).Error; err != nil {
		return err
	}
	closed := reporting.ComputeClosedTradePnLs(trades)
	result.ClosedTradesCount = len(closed)

	wins := 0
	for _, ct := range closed {
		result.ClosedPnL = result.ClosedPnL.Add(ct.NetPnL)
		if ct.NetPnL.IsPositive() {
			wins++
		}
	}
	if len(closed) > 0 {
		result.WinRate = float64(wins) / float64(len(closed)) * 100
	}
	return nil
}

// Render formats the result as plain text
func (r *Result) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Backtest result\n")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Initial capital:      %12s\n", r.InitialCash.StringFixed(2))
	fmt.Fprintf(&b, "Final cash:           %12s\n", r.FinalCash.StringFixed(2))
	fmt.Fprintf(&b, "Open positions value: %12s\n", r.OpenPositionsValue.StringFixed(2))
	fmt.Fprintf(&b, "Total value:          %12s\n", r.TotalValue.StringFixed(2))
	fmt.Fprintf(&b, "Total PnL:            %12s (%s%%)\n", r.TotalPnL.StringFixed(2), r.PnLPercent.StringFixed(2))
	fmt.Fprintf(&b, "Max drawdown:         %11s%%\n", r.MaxDrawdown.Mul(decimal.NewFromInt(100)).StringFixed(2))
	fmt.Fprintf(&b, "\n")
	fmt.Fprintf(&b, "Trading days: %d, decisions: %d, trades: %d\n",
		r.DatesProcessed, r.DecisionsCount, r.TradesCount)
	fmt.Fprintf(&b, "Closed trades: %d, realized PnL %s, win rate %.1f%%\n",
		r.ClosedTradesCount, r.ClosedPnL.StringFixed(2), r.WinRate)

	return b.String()
}
