package quotecache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Default cache location relative to the project directory
const DefaultPath = "data/fetch_cache.db"

// Cache records which ticker/day bars have already been fetched so the
// nightly job does not hit the upstream feed twice for the same bar.
// A small local sqlite file, independent of the main database.
type Cache struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (creating if needed) the cache database at path
func Open(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fetch cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping fetch cache: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS fetched_bars (
			ticker     TEXT NOT NULL,
			date       TEXT NOT NULL,
			fetched_at TEXT NOT NULL,
			PRIMARY KEY (ticker, date)
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Has reports whether the ticker's bar for the date was already fetched
func (c *Cache) Has(ticker string, date time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var n int
	err := c.db.QueryRow(
		"SELECT COUNT(1) FROM fetched_bars WHERE ticker = ? AND date = ?",
		ticker, date.Format("2006-01-02"),
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records that the ticker's bar for the date has been fetched
func (c *Cache) Mark(ticker string, date time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"INSERT OR REPLACE INTO fetched_bars (ticker, date, fetched_at) VALUES (?, ?, ?)",
		ticker, date.Format("2006-01-02"), time.Now().Format(time.RFC3339),
	)
	return err
}

// Prune drops cache rows older than the retention window
func (c *Cache) Prune(olderThan time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(
		"DELETE FROM fetched_bars WHERE date < ?",
		olderThan.Format("2006-01-02"),
	)
	return err
}
