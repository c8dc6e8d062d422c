package marketdata

import (
	"fmt"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
	"github.com/piquette/finance-go/quote"
	"github.com/shopspring/decimal"
)

// Bar is one daily price bar from the upstream feed
type Bar struct {
	Ticker string
	Date   time.Time
	Close  decimal.Decimal
	Volume int64
}

const (
	fetchRetries    = 3
	fetchRetryDelay = 2 * time.Second
)

// Fetcher pulls daily bars from the Yahoo Finance feed
type Fetcher struct{}

// NewFetcher creates a new market data fetcher
func NewFetcher() *Fetcher {
	return &Fetcher{}
}

// NormalizeTicker canonicalizes a configured ticker into the upstream
// symbol. LSE listings carry their ".L" suffix in config (e.g. VOD.L);
// suffixed and bare symbols both pass through upcased and trimmed.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// FetchLatest returns the most recent daily bar for the ticker
func (f *Fetcher) FetchLatest(ticker string) (*Bar, error) {
	symbol := NormalizeTicker(ticker)

	var bar *Bar
	err := withRetry(func() error {
		q, err := quote.Get(symbol)
		if err != nil {
			return fmt.Errorf("failed to get quote for %s: %w", symbol, err)
		}
		if q == nil {
			return fmt.Errorf("empty quote for %s", symbol)
		}

		bar = &Bar{
			Ticker: ticker,
			Date:   tradingDay(time.Unix(int64(q.RegularMarketTime), 0)),
			Close:  decimal.NewFromFloat(q.RegularMarketPrice),
			Volume: int64(q.RegularMarketVolume),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bar, nil
}

// FetchHistory returns daily bars for the ticker between start and end,
// oldest first.
func (f *Fetcher) FetchHistory(ticker string, start, end time.Time) ([]*Bar, error) {
	symbol := NormalizeTicker(ticker)

	var bars []*Bar
	err := withRetry(func() error {
		params := &chart.Params{
			Symbol:   symbol,
			Start:    datetime.New(&start),
			End:      datetime.New(&end),
			Interval: datetime.OneDay,
		}

		iter := chart.Get(params)
		bars = bars[:0]
		for iter.Next() {
			b := iter.Bar()
			bars = append(bars, &Bar{
				Ticker: ticker,
				Date:   tradingDay(time.Unix(int64(b.Timestamp), 0)),
				Close:  b.Close,
				Volume: int64(b.Volume),
			})
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to get history for %s: %w", symbol, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return bars, nil
}

// tradingDay truncates a timestamp to its UTC date
func tradingDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < fetchRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		time.Sleep(fetchRetryDelay * time.Duration(attempt+1))
	}
	return err
}
