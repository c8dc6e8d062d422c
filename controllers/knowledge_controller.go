package controllers

import (
	"net/http"
	"strconv"
	"time"

	"lse_trading_system/services/news"
	"lse_trading_system/services/sentiment"

	"github.com/gin-gonic/gin"
)

// KnowledgeController serves knowledge base search and news import
type KnowledgeController struct {
	knowledge *sentiment.KnowledgeService
	importer  *news.Importer
	tickers   []string
}

// NewKnowledgeController creates a new knowledge controller
func NewKnowledgeController(knowledge *sentiment.KnowledgeService, importer *news.Importer, tickers []string) *KnowledgeController {
	return &KnowledgeController{knowledge: knowledge, importer: importer, tickers: tickers}
}

// Search runs a similarity search over the knowledge base
func (kc *KnowledgeController) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": "q parameter is required"})
		return
	}

	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	results, err := kc.knowledge.SearchSimilar(query, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "search_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": query, "results": results})
}

// GetSentiment returns the recent news sentiment for a ticker
func (kc *KnowledgeController) GetSentiment(c *gin.Context) {
	ticker := c.Param("ticker")
	days := 7
	if raw := c.Query("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 90 {
			days = n
		}
	}

	since := time.Now().AddDate(0, 0, -days)
	score, err := kc.knowledge.RecentNewsSentiment(ticker, since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticker": ticker, "days": days, "sentiment": score})
}

// ImportNews triggers a news import for the configured tickers
func (kc *KnowledgeController) ImportNews(c *gin.Context) {
	tickers := kc.tickers
	if ticker := c.Query("ticker"); ticker != "" {
		tickers = []string{ticker}
	}

	imported, err := kc.importer.ImportForTickers(tickers)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "import_failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": imported, "tickers": tickers})
}
