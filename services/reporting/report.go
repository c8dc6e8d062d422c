package reporting

import (
	"fmt"
	"strings"
	"time"

	"lse_trading_system/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Reporter builds portfolio and trade-history reports
type Reporter struct {
	db          *gorm.DB
	initialCash decimal.Decimal
}

// NewReporter creates a reporter. initialCash is the seeded balance the
// trade ledger is reconciled against.
func NewReporter(db *gorm.DB, initialCash decimal.Decimal) *Reporter {
	return &Reporter{db: db, initialCash: initialCash}
}

// ClosedTradePnL is the realized outcome of one closed lot
type ClosedTradePnL struct {
	Ticker     string          `json:"ticker"`
	OpenedAt   time.Time       `json:"opened_at"`
	ClosedAt   time.Time       `json:"closed_at"`
	Quantity   decimal.Decimal `json:"quantity"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	Commission decimal.Decimal `json:"commission"`
	NetPnL     decimal.Decimal `json:"net_pnl"`
}

// PositionValue is one open position priced at its latest close
type PositionValue struct {
	Ticker        string          `json:"ticker"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	LastPrice     decimal.Decimal `json:"last_price"`
	MarketValue   decimal.Decimal `json:"market_value"`
	UnrealizedPnL decimal.Decimal `json:"unrealized_pnl"`
}

// Report is the full portfolio report
type Report struct {
	GeneratedAt        time.Time        `json:"generated_at"`
	Cash               decimal.Decimal  `json:"cash"`
	Positions          []PositionValue  `json:"positions"`
	OpenPositionsValue decimal.Decimal  `json:"open_positions_value"`
	TotalValue         decimal.Decimal  `json:"total_value"`
	ClosedTrades       []ClosedTradePnL `json:"closed_trades"`
	ClosedPnL          decimal.Decimal  `json:"closed_pnl"`
	WinRate            float64          `json:"win_rate"`
	TradeCount         int              `json:"trade_count"`
	CashReconciles     bool             `json:"cash_reconciles"`
}

// LoadTradeHistory returns all trades in execution order
func (r *Reporter) LoadTradeHistory() ([]models.Trade, error) {
	var trades []models.Trade
	err := r.db.Order("executed_at ASC, id ASC").Find(&trades).Error
	return trades, err
}

// lot is an open buy parcel awaiting FIFO matching
type lot struct {
	openedAt   time.Time
	quantity   decimal.Decimal
	price      decimal.Decimal
	commission decimal.Decimal // remaining unallocated buy commission
}

// ComputeClosedTradePnLs pairs sells against buys FIFO per ticker. A sell
// larger than the oldest lot consumes lots until filled; commissions are
// allocated pro rata to the matched quantity.
func ComputeClosedTradePnLs(trades []models.Trade) []ClosedTradePnL {
	open := make(map[string][]lot)
	var closed []ClosedTradePnL

	for _, t := range trades {
		switch t.Side {
		case models.SideBuy:
			open[t.Ticker] = append(open[t.Ticker], lot{
				openedAt:   t.ExecutedAt,
				quantity:   t.Quantity,
				price:      t.Price,
				commission: t.Commission,
			})

		case models.SideSell:
			remaining := t.Quantity
			sellCommission := t.Commission
			for remaining.IsPositive() && len(open[t.Ticker]) > 0 {
				l := &open[t.Ticker][0]

				matched := decimal.Min(remaining, l.quantity)
				share := matched.Div(t.Quantity)
				lotShare := matched.Div(l.quantity)

				buyCommission := l.commission.Mul(lotShare)
				exitCommission := sellCommission.Mul(share)
				commission := buyCommission.Add(exitCommission)

				gross := t.Price.Sub(l.price).Mul(matched)
				closed = append(closed, ClosedTradePnL{
					Ticker:     t.Ticker,
					OpenedAt:   l.openedAt,
					ClosedAt:   t.ExecutedAt,
					Quantity:   matched,
					EntryPrice: l.price,
					ExitPrice:  t.Price,
					Commission: commission,
					NetPnL:     gross.Sub(commission),
				})

				l.quantity = l.quantity.Sub(matched)
				l.commission = l.commission.Sub(buyCommission)
				remaining = remaining.Sub(matched)
				if !l.quantity.IsPositive() {
					open[t.Ticker] = open[t.Ticker][1:]
				}
			}
		}
	}

	return closed
}

// Generate builds the full report as of now
func (r *Reporter) Generate() (*Report, error) {
	report := &Report{GeneratedAt: time.Now()}

	var cash models.PortfolioPosition
	err := r.db.Where("ticker = ?", models.CashTicker).First(&cash).Error
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, fmt.Errorf("failed to load cash position: %w", err)
	}
	report.Cash = cash.Quantity

	var positions []models.PortfolioPosition
	err = r.db.Where("ticker != ? AND quantity > 0", models.CashTicker).
		Order("ticker ASC").Find(&positions).Error
	if err != nil {
		return nil, err
	}

	for _, pos := range positions {
		var quote models.Quote
		err := r.db.Where("ticker = ?", pos.Ticker).Order("date DESC").First(&quote).Error
		if err != nil {
			// Position without a price is reported at entry value
			quote.Close = pos.AvgEntryPrice
		}

		value := quote.Close.Mul(pos.Quantity)
		report.Positions = append(report.Positions, PositionValue{
			Ticker:        pos.Ticker,
			Quantity:      pos.Quantity,
			AvgEntryPrice: pos.AvgEntryPrice,
			LastPrice:     quote.Close,
			MarketValue:   value,
			UnrealizedPnL: quote.Close.Sub(pos.AvgEntryPrice).Mul(pos.Quantity),
		})
		report.OpenPositionsValue = report.OpenPositionsValue.Add(value)
	}
	report.TotalValue = report.Cash.Add(report.OpenPositionsValue)

	trades, err := r.LoadTradeHistory()
	if err != nil {
		return nil, err
	}
	report.TradeCount = len(trades)
	report.ClosedTrades = ComputeClosedTradePnLs(trades)

	wins := 0
	for _, ct := range report.ClosedTrades {
		report.ClosedPnL = report.ClosedPnL.Add(ct.NetPnL)
		if ct.NetPnL.IsPositive() {
			wins++
		}
	}
	if n := len(report.ClosedTrades); n > 0 {
		report.WinRate = float64(wins) / float64(n) * 100
	}

	report.CashReconciles = r.reconcile(trades, report.Cash)
	return report, nil
}

// reconcile replays the trade ledger against cash: every buy subtracts its
// total value, every sell adds its net proceeds. Seed plus the replayed
// delta must land on the current cash balance to the cent.
func (r *Reporter) reconcile(trades []models.Trade, cash decimal.Decimal) bool {
	delta := decimal.Zero
	for _, t := range trades {
		switch t.Side {
		case models.SideBuy:
			delta = delta.Sub(t.TotalValue)
		case models.SideSell:
			delta = delta.Add(t.TotalValue)
		}
	}

	expected := r.initialCash.Add(delta)
	return expected.Sub(cash).Abs().LessThan(decimal.NewFromFloat(0.01))
}

// Render formats the report as plain text
func (r *Report) Render() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Portfolio report - %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "%s\n", strings.Repeat("=", 60))
	fmt.Fprintf(&b, "Cash:                 %12s\n", r.Cash.StringFixed(2))
	fmt.Fprintf(&b, "Open positions value: %12s\n", r.OpenPositionsValue.StringFixed(2))
	fmt.Fprintf(&b, "Total value:          %12s\n", r.TotalValue.StringFixed(2))
	fmt.Fprintf(&b, "\n")

	if len(r.Positions) > 0 {
		fmt.Fprintf(&b, "Positions:\n")
		for _, p := range r.Positions {
			fmt.Fprintf(&b, "  %-8s %12s @ %10s  last %10s  value %12s  pnl %12s\n",
				p.Ticker, p.Quantity.String(), p.AvgEntryPrice.StringFixed(2),
				p.LastPrice.StringFixed(2), p.MarketValue.StringFixed(2),
				p.UnrealizedPnL.StringFixed(2))
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "Closed trades: %d, realized PnL %s, win rate %.1f%%\n",
		len(r.ClosedTrades), r.ClosedPnL.StringFixed(2), r.WinRate)
	fmt.Fprintf(&b, "Total trades recorded: %d\n", r.TradeCount)
	if !r.CashReconciles {
		fmt.Fprintf(&b, "WARNING: cash balance does not reconcile with trade history\n")
	}

	return b.String()
}
