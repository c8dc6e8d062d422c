package controllers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/marketdata"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// QuoteController serves stored quotes and price update triggers
type QuoteController struct {
	db      *gorm.DB
	updater *marketdata.Updater
	tickers []string
}

// NewQuoteController creates a new quote controller
func NewQuoteController(db *gorm.DB, updater *marketdata.Updater, tickers []string) *QuoteController {
	return &QuoteController{db: db, updater: updater, tickers: tickers}
}

// GetQuotes returns stored quotes for a ticker, newest first
func (qc *QuoteController) GetQuotes(c *gin.Context) {
	ticker := strings.ToUpper(c.Param("ticker"))

	limit := 30
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	var quotes []models.Quote
	err := qc.db.Where("ticker = ?", ticker).
		Order("date DESC").
		Limit(limit).
		Find(&quotes).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	if len(quotes) == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "No quotes stored for " + ticker,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "quotes": quotes})
}

// TriggerPriceUpdate runs the daily price update on demand
func (qc *QuoteController) TriggerPriceUpdate(c *gin.Context) {
	if err := qc.updater.UpdateDaily(qc.tickers); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "update_failed",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "tickers": qc.tickers})
}

type backfillRequest struct {
	Ticker string `json:"ticker" binding:"required"`
	Days   int    `json:"days"`
}

// Backfill fetches historical bars for one ticker
func (qc *QuoteController) Backfill(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": err.Error()})
		return
	}
	if req.Days <= 0 {
		req.Days = 90
	}

	end := time.Now()
	start := end.AddDate(0, 0, -req.Days)
	stored, err := qc.updater.Backfill(strings.ToUpper(req.Ticker), start, end)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "backfill_failed",
			"message": err.Error(),
			"stored":  stored,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "stored": stored})
}
