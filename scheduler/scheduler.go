package scheduler

import (
	"log"
	"time"

	"lse_trading_system/croninstall"
	"lse_trading_system/services/marketdata"
	"lse_trading_system/services/trading"

	"github.com/go-co-op/gocron"
)

// Scheduler runs in-process what the crontab route runs out of process:
// the daily price update and the weekday trading cycles, on the exact
// schedule literals the cron installer writes.
type Scheduler struct {
	cron    *gocron.Scheduler
	updater *marketdata.Updater
	cycle   *trading.Cycle
	tickers []string
}

// NewScheduler creates a new scheduler instance
func NewScheduler(updater *marketdata.Updater, cycle *trading.Cycle, tickers []string) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		updater: updater,
		cycle:   cycle,
		tickers: tickers,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Daily price update at 22:00
	s.cron.Cron(croninstall.PriceUpdateSchedule).Do(func() {
		if err := s.updater.UpdateDaily(s.tickers); err != nil {
			log.Printf("Scheduled price update failed: %v", err)
		}
	})

	// Trading cycle at 9, 13 and 17 on weekdays
	s.cron.Cron(croninstall.TradingCycleSchedule).Do(func() {
		if _, err := s.cycle.Run(time.Now()); err != nil {
			if err == trading.ErrCycleRunning {
				log.Println("Skipping trading cycle, previous run still in progress")
				return
			}
			log.Printf("Scheduled trading cycle failed: %v", err)
		}
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// JobCount returns the number of registered jobs
func (s *Scheduler) JobCount() int {
	return len(s.cron.Jobs())
}
