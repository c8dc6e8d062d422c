package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lse_trading_system/config"
	"lse_trading_system/models"
	"lse_trading_system/routes"
	"lse_trading_system/scheduler"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/backtesting"
	"lse_trading_system/services/news"
	"lse_trading_system/services/reporting"
	"lse_trading_system/services/stream"
	"lse_trading_system/services/trading"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// dbInitialized tracks whether database setup has completed. Read by the
// /ready endpoint while the background init goroutine may still be writing.
var dbInitialized bool
var dbInitMutex sync.RWMutex

// runServe starts the HTTP server immediately and brings up the database,
// routes and scheduler in the background, so container platforms see the
// listener before the (possibly slow) database connect finishes.
func runServe() error {
	log.Println("==============================================")
	log.Println("  LSE Trading System API - Starting...")
	log.Println("==============================================")

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("Warning: Config load issue: %v", err)
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	// Health endpoints go in before anything else so probes succeed while
	// the database is still connecting
	setupHealthEndpoints(router)

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.Printf("Server listening on 0.0.0.0:%s", cfg.Port)
		log.Println("==============================================")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	var jobScheduler *scheduler.Scheduler
	var archive *news.Archive
	go func() {
		db, err := config.InitDB()
		if err != nil {
			log.Printf("ERROR: Database connection failed: %v", err)
			log.Println("Service will continue in limited mode (health check only)")
			return
		}

		log.Println("Running database migrations...")
		if err := runMigrations(db); err != nil {
			log.Printf("ERROR: Migration failed: %v", err)
		} else {
			log.Println("Database migrations completed successfully")
		}

		if err := models.SeedCashPosition(db, decimal.NewFromFloat(cfg.InitialCash)); err != nil {
			log.Printf("Warning: Could not seed cash position: %v", err)
		}
		if cfg.AdminPassword != "" {
			if err := models.SeedAdminUser(db, cfg.AdminUsername, cfg.AdminPassword); err != nil {
				log.Printf("Warning: Could not seed admin user: %v", err)
			}
		}

		// Wire services
		hub := stream.NewHub()
		updater := buildUpdater(db, hub)
		knowledge := buildKnowledge(db)
		analyst := analysis.NewAnalyst(db)
		agent := buildAgent(db, knowledge)
		cycle := trading.NewCycle(db, analyst, agent, knowledge, cfg.Tickers)
		reporter := reporting.NewReporter(db, decimal.NewFromFloat(cfg.InitialCash))
		engine := backtesting.NewEngine(db, analyst, agent)

		archive, err = news.NewArchive(cfg.MongoURI)
		if err != nil {
			log.Printf("Article archive unavailable: %v", err)
		}
		importer := news.NewImporter(db, knowledge, archive)

		dbInitMutex.Lock()
		dbInitialized = true
		dbInitMutex.Unlock()

		routes.SetupRoutes(router, &routes.Deps{
			DB:        db,
			Updater:   updater,
			Cycle:     cycle,
			Reporter:  reporter,
			Backtest:  engine,
			Knowledge: knowledge,
			Importer:  importer,
			Hub:       hub,
			Tickers:   cfg.Tickers,
		})

		jobScheduler = scheduler.NewScheduler(updater, cycle, cfg.Tickers)
		go jobScheduler.Start()

		log.Println("Application fully initialized with database")
	}()

	gracefulShutdown(server, func() {
		if jobScheduler != nil {
			jobScheduler.Stop()
		}
		if archive != nil {
			archive.Close()
		}
	})
	return nil
}

// setupHealthEndpoints sets up liveness and readiness probes
func setupHealthEndpoints(router *gin.Engine) {
	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "LSE Trading System API",
			"version": "1.0.0",
		})
	})

	// Liveness probe - always OK while the process is up
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness probe - requires a working database connection
	router.GET("/ready", func(c *gin.Context) {
		dbInitMutex.RLock()
		isDBReady := dbInitialized
		dbInitMutex.RUnlock()

		if !isDBReady {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database not connected",
			})
			return
		}

		sqlDB, err := config.DB.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not_ready",
				"message": "Database unavailable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger returns a request logging middleware
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Health probes would drown the log
		path := c.Request.URL.Path
		if path == "/health" || path == "/ready" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		if c.Writer.Status() >= 400 || duration > 1*time.Second {
			log.Printf("%s %s %d %v", c.Request.Method, path, c.Writer.Status(), duration)
		}
	}
}

// gracefulShutdown blocks until SIGINT or SIGTERM, then stops background
// work and drains the HTTP server
func gracefulShutdown(server *http.Server, stopBackground func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	log.Println("Server stopped")
}
