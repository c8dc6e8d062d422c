package routes

import (
	"lse_trading_system/controllers"
	"lse_trading_system/middleware"
	"lse_trading_system/services/backtesting"
	"lse_trading_system/services/marketdata"
	"lse_trading_system/services/news"
	"lse_trading_system/services/reporting"
	"lse_trading_system/services/sentiment"
	"lse_trading_system/services/stream"
	"lse_trading_system/services/trading"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Deps holds the wired services the HTTP layer exposes
type Deps struct {
	DB        *gorm.DB
	Updater   *marketdata.Updater
	Cycle     *trading.Cycle
	Reporter  *reporting.Reporter
	Backtest  *backtesting.Engine
	Knowledge *sentiment.KnowledgeService
	Importer  *news.Importer
	Hub       *stream.Hub
	Tickers   []string
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps *Deps) {
	// Initialize controllers
	authController := controllers.NewAuthController(deps.DB)
	quoteController := controllers.NewQuoteController(deps.DB, deps.Updater, deps.Tickers)
	tradingController := controllers.NewTradingController(deps.DB, deps.Cycle, deps.Reporter, deps.Backtest)
	knowledgeController := controllers.NewKnowledgeController(deps.Knowledge, deps.Importer, deps.Tickers)

	// Auth routes (no token required)
	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/login", authController.Login)
	}

	// Websocket price stream (no token required, read-only)
	router.GET("/ws/prices", func(c *gin.Context) {
		deps.Hub.HandleWS(c.Writer, c.Request)
	})

	// API v1 group
	api := router.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware())
	{
		// Quote routes
		quotes := api.Group("/quotes")
		{
			quotes.GET("/:ticker", quoteController.GetQuotes)
			quotes.POST("/update", quoteController.TriggerPriceUpdate)
			quotes.POST("/backfill", quoteController.Backfill)
		}

		// Portfolio and trading routes
		portfolio := api.Group("/portfolio")
		{
			portfolio.GET("", tradingController.GetPortfolio)
			portfolio.GET("/trades", tradingController.GetTrades)
			portfolio.GET("/report", tradingController.GetReport)
		}

		tradingGroup := api.Group("/trading")
		{
			tradingGroup.POST("/cycle", tradingController.RunCycle)
			tradingGroup.POST("/backtest", tradingController.RunBacktest)
		}

		// Knowledge base routes
		knowledge := api.Group("/knowledge")
		{
			knowledge.GET("/search", knowledgeController.Search)
			knowledge.GET("/sentiment/:ticker", knowledgeController.GetSentiment)
			knowledge.POST("/import-news", knowledgeController.ImportNews)
		}
	}
}
