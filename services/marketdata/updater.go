package marketdata

import (
	"fmt"
	"log"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/analysis"
	"lse_trading_system/services/quotecache"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Publisher receives freshly stored quotes. The websocket hub implements it.
type Publisher interface {
	PublishQuote(q models.Quote)
}

// Updater runs the daily price update job: fetch the latest close for each
// tracked ticker, recompute the 5-day statistics and upsert the quote row.
type Updater struct {
	db        *gorm.DB
	fetcher   *Fetcher
	cache     *quotecache.Cache // optional
	publisher Publisher         // optional
}

// NewUpdater creates a price updater. cache and publisher may be nil.
func NewUpdater(db *gorm.DB, fetcher *Fetcher, cache *quotecache.Cache, publisher Publisher) *Updater {
	return &Updater{db: db, fetcher: fetcher, cache: cache, publisher: publisher}
}

// UpdateDaily fetches and stores the latest bar for every ticker.
// Failures on individual tickers are logged and do not stop the run.
func (u *Updater) UpdateDaily(tickers []string) error {
	log.Printf("Updating daily quotes for %d tickers", len(tickers))

	var failed int
	for _, ticker := range tickers {
		if err := u.updateTicker(ticker); err != nil {
			log.Printf("Error updating %s: %v", ticker, err)
			failed++
		}
	}

	if failed == len(tickers) && len(tickers) > 0 {
		return fmt.Errorf("price update failed for all %d tickers", failed)
	}
	log.Printf("Daily quote update finished (%d ok, %d failed)", len(tickers)-failed, failed)
	return nil
}

func (u *Updater) updateTicker(ticker string) error {
	bar, err := u.fetcher.FetchLatest(ticker)
	if err != nil {
		return err
	}

	if u.cache != nil {
		seen, err := u.cache.Has(ticker, bar.Date)
		if err == nil && seen {
			log.Printf("Skipping %s %s, already fetched", ticker, bar.Date.Format("2006-01-02"))
			return nil
		}
	}

	quote, err := u.storeBar(bar)
	if err != nil {
		return err
	}

	if u.cache != nil {
		if err := u.cache.Mark(ticker, bar.Date); err != nil {
			log.Printf("Warning: could not mark fetch cache for %s: %v", ticker, err)
		}
	}
	if u.publisher != nil {
		u.publisher.PublishQuote(*quote)
	}
	return nil
}

// Backfill fetches and stores history for the ticker between start and end.
// Rolling statistics are recomputed per bar in chronological order.
func (u *Updater) Backfill(ticker string, start, end time.Time) (int, error) {
	bars, err := u.fetcher.FetchHistory(ticker, start, end)
	if err != nil {
		return 0, err
	}

	stored := 0
	for _, bar := range bars {
		if _, err := u.storeBar(bar); err != nil {
			return stored, fmt.Errorf("failed to store %s %s: %w",
				ticker, bar.Date.Format("2006-01-02"), err)
		}
		stored++
	}

	log.Printf("Backfilled %d bars for %s", stored, ticker)
	return stored, nil
}

// storeBar upserts one quote row with its 5-day statistics. The window is
// the four stored closes before the bar's date plus the bar itself.
func (u *Updater) storeBar(bar *Bar) (*models.Quote, error) {
	var prior []models.Quote
	err := u.db.Where("ticker = ? AND date < ?", bar.Ticker, bar.Date).
		Order("date DESC").
		Limit(4).
		Find(&prior).Error
	if err != nil {
		return nil, err
	}

	// Oldest first, then the incoming close
	closes := make([]decimal.Decimal, 0, len(prior)+1)
	for i := len(prior) - 1; i >= 0; i-- {
		closes = append(closes, prior[i].Close)
	}
	closes = append(closes, bar.Close)

	quote := models.Quote{
		Ticker:      bar.Ticker,
		Date:        bar.Date,
		Close:       bar.Close,
		Volume:      bar.Volume,
		SMA5:        analysis.SMA(closes),
		Volatility5: analysis.Volatility(closes),
	}

	var existing models.Quote
	err = u.db.Where("ticker = ? AND date = ?", bar.Ticker, bar.Date).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		if err := u.db.Create(&quote).Error; err != nil {
			return nil, err
		}
		return &quote, nil
	}
	if err != nil {
		return nil, err
	}

	if err := u.db.Model(&existing).Updates(map[string]interface{}{
		"close":        quote.Close,
		"volume":       quote.Volume,
		"sma_5":        quote.SMA5,
		"volatility_5": quote.Volatility5,
	}).Error; err != nil {
		return nil, err
	}
	existing.Close = quote.Close
	existing.Volume = quote.Volume
	existing.SMA5 = quote.SMA5
	existing.Volatility5 = quote.Volatility5
	return &existing, nil
}
