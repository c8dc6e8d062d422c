package cli

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"lse_trading_system/config"
	"lse_trading_system/croninstall"
	"lse_trading_system/models"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/backtesting"
	"lse_trading_system/services/execution"
	"lse_trading_system/services/marketdata"
	"lse_trading_system/services/news"
	"lse_trading_system/services/quotecache"
	"lse_trading_system/services/reporting"
	"lse_trading_system/services/sentiment"
	"lse_trading_system/services/trading"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "lse-trading",
		Short: "LSE Trading System - automated LSE equity trading",
		Long: `LSE Trading System runs scheduled price updates and trading cycles
against London Stock Exchange tickers, maintains a simulated portfolio,
and serves the results over an HTTP API.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Default behavior: start the API server
			return runServe()
		},
	}

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newInitDBCmd())
	rootCmd.AddCommand(newUpdatePricesCmd())
	rootCmd.AddCommand(newTradingCycleCmd())
	rootCmd.AddCommand(newImportNewsCmd())
	rootCmd.AddCommand(newReportCmd())
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newInstallCronCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// connect loads configuration and opens the database
func connect() (*gorm.DB, error) {
	if _, err := config.LoadConfig(); err != nil {
		return nil, err
	}
	db, err := config.InitDB()
	if err != nil {
		return nil, err
	}
	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := models.MigrateMarketModels(db); err != nil {
		return err
	}
	if err := models.MigrateKnowledgeModels(db); err != nil {
		return err
	}
	if err := models.MigratePortfolioModels(db); err != nil {
		return err
	}
	if err := models.MigrateAdminModels(db); err != nil {
		return err
	}
	return nil
}

// buildKnowledge wires the embedder and knowledge service from config
func buildKnowledge(db *gorm.DB) *sentiment.KnowledgeService {
	embedder := sentiment.NewEmbedder(config.AppConfig.EmbeddingURL, config.AppConfig.EmbeddingAPIKey)
	return sentiment.NewKnowledgeService(db, embedder)
}

// buildUpdater wires the market data updater with the local fetch cache
func buildUpdater(db *gorm.DB, publisher marketdata.Publisher) *marketdata.Updater {
	fetcher := marketdata.NewFetcher()

	cache, err := quotecache.Open(quotecache.DefaultPath)
	if err != nil {
		log.Printf("Warning: fetch cache unavailable, fetching without it: %v", err)
		cache = nil
	}

	return marketdata.NewUpdater(db, fetcher, cache, publisher)
}

// buildAgent wires the execution agent from config
func buildAgent(db *gorm.DB, knowledge *sentiment.KnowledgeService) *execution.Agent {
	return execution.NewAgent(db, knowledge, config.AppConfig.CommissionRate, config.AppConfig.StopLossPct)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server and background scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func newInitDBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Run database migrations and seed the cash position",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			log.Println("Running database migrations...")
			if err := runMigrations(db); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			if err := models.SeedCashPosition(db, decimal.NewFromFloat(config.AppConfig.InitialCash)); err != nil {
				return fmt.Errorf("failed to seed cash position: %w", err)
			}

			if config.AppConfig.AdminPassword != "" {
				if err := models.SeedAdminUser(db, config.AppConfig.AdminUsername, config.AppConfig.AdminPassword); err != nil {
					log.Printf("Warning: could not seed admin user: %v", err)
				}
			}

			log.Println("Database initialized")
			return nil
		},
	}
}

func newUpdatePricesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update-prices",
		Short: "Fetch and store the latest quote for every configured ticker",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			updater := buildUpdater(db, nil)
			return updater.UpdateDaily(config.AppConfig.Tickers)
		},
	}
}

func newTradingCycleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trading-cycle",
		Short: "Run one trading cycle over the configured tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			knowledge := buildKnowledge(db)
			analyst := analysis.NewAnalyst(db)
			agent := buildAgent(db, knowledge)
			cycle := trading.NewCycle(db, analyst, agent, knowledge, config.AppConfig.Tickers)

			result, err := cycle.Run(time.Now())
			if err != nil {
				return err
			}

			log.Printf("Cycle complete: %d decisions, %d trades, %d errors in %s",
				len(result.Decisions), len(result.Trades), len(result.Errors), result.Duration)
			return nil
		},
	}
}

func newImportNewsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import-news",
		Short: "Import recent news headlines into the knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			knowledge := buildKnowledge(db)

			archive, err := news.NewArchive(config.AppConfig.MongoURI)
			if err != nil {
				log.Printf("Warning: article archive unavailable: %v", err)
			}
			if archive != nil {
				defer archive.Close()
			}

			importer := news.NewImporter(db, knowledge, archive)

			tickers := config.AppConfig.Tickers
			if t, _ := cmd.Flags().GetString("ticker"); t != "" {
				tickers = []string{t}
			}

			imported, err := importer.ImportForTickers(tickers)
			if err != nil {
				return err
			}
			log.Printf("Imported %d articles", imported)
			return nil
		},
	}
	cmd.Flags().String("ticker", "", "Import news for a single ticker only")
	return cmd
}

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print the portfolio report",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			reporter := reporting.NewReporter(db, decimal.NewFromFloat(config.AppConfig.InitialCash))
			report, err := reporter.Generate()
			if err != nil {
				return err
			}

			fmt.Print(report.Render())
			return nil
		},
	}
}

func newBacktestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run a backtest over stored quotes",
		Long: `Run a backtest over the quote history already stored in the database.
The backtest resets the portfolio tables before it starts.

Example: lse-trading backtest --start=2024-01-01 --end=2024-06-30 --tickers=MSFT,SNDK`,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := connect()
			if err != nil {
				return err
			}

			startRaw, _ := cmd.Flags().GetString("start")
			endRaw, _ := cmd.Flags().GetString("end")
			start, err := time.Parse("2006-01-02", startRaw)
			if err != nil {
				return fmt.Errorf("invalid --start, use YYYY-MM-DD: %w", err)
			}
			end, err := time.Parse("2006-01-02", endRaw)
			if err != nil {
				return fmt.Errorf("invalid --end, use YYYY-MM-DD: %w", err)
			}

			tickers := config.AppConfig.Tickers
			if raw, _ := cmd.Flags().GetStringSlice("tickers"); len(raw) > 0 {
				tickers = raw
			}

			knowledge := buildKnowledge(db)
			analyst := analysis.NewAnalyst(db)
			agent := buildAgent(db, knowledge)
			engine := backtesting.NewEngine(db, analyst, agent)

			result, err := engine.Run(&backtesting.Config{
				Tickers:     tickers,
				StartDate:   start,
				EndDate:     end,
				InitialCash: decimal.NewFromFloat(config.AppConfig.InitialCash),
			})
			if err != nil {
				return err
			}

			fmt.Print(result.Render())
			return nil
		},
	}
	cmd.Flags().String("start", "", "Backtest start date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Backtest end date (YYYY-MM-DD)")
	cmd.Flags().StringSlice("tickers", nil, "Tickers to backtest (defaults to configured tickers)")
	cmd.MarkFlagRequired("start")
	cmd.MarkFlagRequired("end")
	return cmd
}

func newInstallCronCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install-cron",
		Short: "Install the scheduled jobs into the user's crontab",
		Long: `Install the price update and trading cycle schedules into the current
user's crontab. Existing unrelated entries are preserved; entries from a
previous install are replaced, so re-running is safe.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, _ := cmd.Flags().GetString("dir")
			if projectDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("failed to resolve working directory: %w", err)
				}
				projectDir = wd
			}
			projectDir, err := filepath.Abs(projectDir)
			if err != nil {
				return err
			}

			binary, _ := cmd.Flags().GetString("binary")
			if binary == "" {
				exe, err := os.Executable()
				if err != nil {
					return fmt.Errorf("failed to resolve executable path: %w", err)
				}
				binary = exe
			}

			return croninstall.New(projectDir, binary).Install()
		},
	}
	cmd.Flags().String("dir", "", "Project directory for logs and cron entries (defaults to the working directory)")
	cmd.Flags().String("binary", "", "Binary path the cron entries invoke (defaults to the running executable)")
	return cmd
}
