package trading

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/execution"
	"lse_trading_system/services/sentiment"

	"gorm.io/gorm"
)

// ErrCycleRunning is returned when a cycle is requested while the previous
// one has not finished. Scheduled slots are disjoint, but a cycle that
// overruns into the next slot must not overlap itself.
var ErrCycleRunning = errors.New("trading cycle already running")

// How far back news counts toward a ticker's sentiment
const sentimentWindow = 7 * 24 * time.Hour

// CycleResult summarizes one trading cycle run
type CycleResult struct {
	StartedAt time.Time            `json:"started_at"`
	Duration  time.Duration        `json:"duration"`
	Decisions []*analysis.Decision `json:"decisions"`
	Trades    []*models.Trade      `json:"trades"`
	Errors    []string             `json:"errors,omitempty"`
}

// Cycle drives one analyst-decide / execute pass over the tracked tickers
type Cycle struct {
	db        *gorm.DB
	analyst   *analysis.Analyst
	agent     *execution.Agent
	knowledge *sentiment.KnowledgeService
	tickers   []string

	runLock sync.Mutex
}

// NewCycle creates a trading cycle runner
func NewCycle(db *gorm.DB, analyst *analysis.Analyst, agent *execution.Agent, knowledge *sentiment.KnowledgeService, tickers []string) *Cycle {
	return &Cycle{
		db:        db,
		analyst:   analyst,
		agent:     agent,
		knowledge: knowledge,
		tickers:   tickers,
	}
}

// Run executes one full trading cycle as of the given time. Only one cycle
// runs at a time; a second caller gets ErrCycleRunning immediately.
func (c *Cycle) Run(at time.Time) (*CycleResult, error) {
	if !c.runLock.TryLock() {
		return nil, ErrCycleRunning
	}
	defer c.runLock.Unlock()

	start := time.Now()
	log.Printf("Trading cycle starting for %d tickers", len(c.tickers))

	result := &CycleResult{StartedAt: start}

	for _, ticker := range c.tickers {
		if err := c.processTicker(ticker, at, result); err != nil {
			log.Printf("Error processing %s: %v", ticker, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", ticker, err))
		}
	}

	// Stop-loss sweep after the decision pass, as the last word of the cycle
	closed, err := c.agent.CheckStopLosses(at)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("stop-loss sweep: %v", err))
	}
	result.Trades = append(result.Trades, closed...)

	result.Duration = time.Since(start)
	log.Printf("Trading cycle finished: %d decisions, %d trades, %d errors in %s",
		len(result.Decisions), len(result.Trades), len(result.Errors), result.Duration)
	return result, nil
}

func (c *Cycle) processTicker(ticker string, at time.Time, result *CycleResult) error {
	newsSentiment := 0.0
	if c.knowledge != nil {
		s, err := c.knowledge.RecentNewsSentiment(ticker, at.Add(-sentimentWindow))
		if err != nil {
			log.Printf("Warning: sentiment lookup failed for %s: %v", ticker, err)
		} else {
			newsSentiment = s
		}
	}

	decision, err := c.analyst.Decide(ticker, at, newsSentiment)
	if err != nil {
		return err
	}
	result.Decisions = append(result.Decisions, decision)
	log.Printf("Decision for %s: %s (%s)", ticker, decision.Action, decision.Reason)

	switch {
	case decision.IsBuy():
		trade, err := c.agent.ExecuteBuy(ticker, decision.Action, at, decision.Sentiment)
		if err != nil {
			return err
		}
		result.Trades = append(result.Trades, trade)

	case decision.Action == analysis.ActionSell:
		if !c.hasPosition(ticker) {
			return nil
		}
		trade, err := c.agent.ExecuteSell(ticker, decision.Action, at, decision.Sentiment)
		if err != nil {
			return err
		}
		result.Trades = append(result.Trades, trade)
	}

	return nil
}

func (c *Cycle) hasPosition(ticker string) bool {
	var pos models.PortfolioPosition
	err := c.db.Where("ticker = ? AND quantity > 0", ticker).First(&pos).Error
	return err == nil
}
