package analysis

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Decision actions
const (
	ActionStrongBuy = "STRONG_BUY"
	ActionBuy       = "BUY"
	ActionHold      = "HOLD"
	ActionSell      = "SELL"
)

// Decision thresholds. Momentum is the distance of the latest close from the
// 5-day SMA; buys require the current 5-day volatility to stay within
// maxVolRatio of the 20-day average so spikes do not trigger entries.
const (
	buyMomentum       = 0.02
	strongBuyMomentum = 0.05
	sellMomentum      = -0.02
	maxVolRatio       = 1.5

	sentimentBoost = 0.3
	sentimentVeto  = -0.3
)

// Decision is the analyst's verdict for one ticker on one date
type Decision struct {
	Ticker        string          `json:"ticker"`
	Action        string          `json:"action"`
	Close         decimal.Decimal `json:"close"`
	Momentum      float64         `json:"momentum"`
	Volatility    decimal.Decimal `json:"volatility"`
	AvgVolatility decimal.Decimal `json:"avg_volatility"`
	Sentiment     float64         `json:"sentiment"`
	Reason        string          `json:"reason"`
}

// Decide produces a trading decision for the ticker using the last five
// quotes at or before asOf. sentiment is the mean score of recent news for
// the ticker; strongly negative news vetoes buys, strongly positive news
// upgrades a BUY to STRONG_BUY.
func (a *Analyst) Decide(ticker string, asOf time.Time, sentiment float64) (*Decision, error) {
	quotes, err := a.LastQuotes(ticker, asOf, 5)
	if err != nil {
		return nil, err
	}
	if len(quotes) < 5 {
		return &Decision{
			Ticker:    ticker,
			Action:    ActionHold,
			Sentiment: sentiment,
			Reason:    fmt.Sprintf("only %d quotes available, need 5", len(quotes)),
		}, nil
	}

	latest := quotes[0]
	if latest.SMA5.IsZero() {
		return &Decision{
			Ticker:    ticker,
			Action:    ActionHold,
			Sentiment: sentiment,
			Reason:    "no SMA available yet",
		}, nil
	}

	momentum, _ := latest.Close.Sub(latest.SMA5).Div(latest.SMA5).Float64()

	avgVol, err := a.AverageVolatility20(ticker, asOf)
	if err != nil {
		return nil, err
	}

	volRatio := 1.0
	if avgVol.IsPositive() {
		volRatio, _ = latest.Volatility5.Div(avgVol).Float64()
	}

	d := &Decision{
		Ticker:        ticker,
		Close:         latest.Close,
		Momentum:      momentum,
		Volatility:    latest.Volatility5,
		AvgVolatility: avgVol,
		Sentiment:     sentiment,
	}

	switch {
	case momentum <= sellMomentum:
		d.Action = ActionSell
		d.Reason = fmt.Sprintf("close %.2f%% below SMA5", -momentum*100)
	case momentum >= buyMomentum && volRatio > maxVolRatio:
		d.Action = ActionHold
		d.Reason = fmt.Sprintf("momentum positive but volatility %.1fx above 20-day average", volRatio)
	case momentum >= strongBuyMomentum:
		d.Action = ActionStrongBuy
		d.Reason = fmt.Sprintf("close %.2f%% above SMA5", momentum*100)
	case momentum >= buyMomentum:
		d.Action = ActionBuy
		d.Reason = fmt.Sprintf("close %.2f%% above SMA5", momentum*100)
	default:
		d.Action = ActionHold
		d.Reason = "momentum within neutral band"
	}

	// Sentiment overlay on top of the technical verdict
	if sentiment <= sentimentVeto && (d.Action == ActionBuy || d.Action == ActionStrongBuy) {
		d.Action = ActionHold
		d.Reason += fmt.Sprintf("; vetoed by sentiment %.2f", sentiment)
	} else if sentiment >= sentimentBoost && d.Action == ActionBuy {
		d.Action = ActionStrongBuy
		d.Reason += fmt.Sprintf("; upgraded by sentiment %.2f", sentiment)
	}

	return d, nil
}

// IsBuy reports whether the decision calls for opening or adding to a position
func (d *Decision) IsBuy() bool {
	return d.Action == ActionBuy || d.Action == ActionStrongBuy
}
