package controllers

import (
	"net/http"
	"strconv"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/backtesting"
	"lse_trading_system/services/reporting"
	"lse_trading_system/services/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradingController serves portfolio state, trade history, cycle triggers,
// reports and backtests
type TradingController struct {
	db       *gorm.DB
	cycle    *trading.Cycle
	reporter *reporting.Reporter
	backtest *backtesting.Engine
}

// NewTradingController creates a new trading controller
func NewTradingController(db *gorm.DB, cycle *trading.Cycle, reporter *reporting.Reporter, backtest *backtesting.Engine) *TradingController {
	return &TradingController{db: db, cycle: cycle, reporter: reporter, backtest: backtest}
}

// GetPortfolio returns all portfolio positions including the cash row
func (tc *TradingController) GetPortfolio(c *gin.Context) {
	var positions []models.PortfolioPosition
	err := tc.db.Order("ticker ASC").Find(&positions).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// GetTrades returns the trade history, newest first
func (tc *TradingController) GetTrades(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	query := tc.db.Order("executed_at DESC, id DESC").Limit(limit)
	if ticker := c.Query("ticker"); ticker != "" {
		query = query.Where("ticker = ?", ticker)
	}

	var trades []models.Trade
	if err := query.Find(&trades).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// RunCycle triggers one trading cycle on demand
func (tc *TradingController) RunCycle(c *gin.Context) {
	result, err := tc.cycle.Run(time.Now())
	if err == trading.ErrCycleRunning {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "cycle_running",
			"message": "A trading cycle is already in progress",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "cycle_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetReport returns the portfolio report
func (tc *TradingController) GetReport(c *gin.Context) {
	report, err := tc.reporter.Generate()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report_failed", "message": err.Error()})
		return
	}

	if c.Query("format") == "text" {
		c.String(http.StatusOK, report.Render())
		return
	}
	c.JSON(http.StatusOK, report)
}

type backtestRequest struct {
	Tickers     []string `json:"tickers" binding:"required"`
	StartDate   string   `json:"start_date" binding:"required"`
	EndDate     string   `json:"end_date" binding:"required"`
	InitialCash float64  `json:"initial_cash"`
}

// RunBacktest runs a backtest over stored quotes. The backtest resets the
// portfolio tables, so this endpoint refuses to run while trades exist
// unless force=true is passed.
func (tc *TradingController) RunBacktest(c *gin.Context) {
	var req backtestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "start_date must be YYYY-MM-DD"})
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "end_date must be YYYY-MM-DD"})
		return
	}

	if c.Query("force") != "true" {
		var count int64
		tc.db.Model(&models.Trade{}).Count(&count)
		if count > 0 {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "portfolio_not_empty",
				"message": "Backtest resets the portfolio; pass ?force=true to proceed",
			})
			return
		}
	}

	initialCash := req.InitialCash
	if initialCash <= 0 {
		initialCash = 100000
	}

	result, err := tc.backtest.Run(&backtesting.Config{
		Tickers:     req.Tickers,
		StartDate:   start,
		EndDate:     end,
		InitialCash: decimal.NewFromFloat(initialCash),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "backtest_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}
