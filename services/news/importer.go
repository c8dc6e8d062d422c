package news

import (
	"encoding/xml"
	"fmt"
	"log"
	"strings"
	"time"

	"lse_trading_system/models"
	"lse_trading_system/services/sentiment"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"gorm.io/gorm"
)

const (
	feedURLTemplate = "https://news.google.com/rss/search?q=%s+stock&hl=en-GB&gl=GB&ceid=GB:en"
	maxPerTicker    = 10
)

// Article is one fetched headline before it becomes a knowledge entry
type Article struct {
	Ticker      string    `json:"ticker" bson:"ticker"`
	Title       string    `json:"title" bson:"title"`
	Link        string    `json:"link" bson:"link"`
	Description string    `json:"description" bson:"description"`
	PublishedAt time.Time `json:"published_at" bson:"published_at"`
	FetchedAt   time.Time `json:"fetched_at" bson:"fetched_at"`
}

// Importer fetches headlines for tracked tickers and appends them to the
// knowledge log with sentiment and embedding attached.
type Importer struct {
	db        *gorm.DB
	client    *resty.Client
	knowledge *sentiment.KnowledgeService
	archive   *Archive // optional
}

// NewImporter creates a news importer. archive may be nil.
func NewImporter(db *gorm.DB, knowledge *sentiment.KnowledgeService, archive *Archive) *Importer {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; lse-trading/1.0)")

	return &Importer{
		db:        db,
		client:    client,
		knowledge: knowledge,
		archive:   archive,
	}
}

// ImportForTickers fetches and stores headlines for every ticker. Returns
// the number of new knowledge entries created.
func (im *Importer) ImportForTickers(tickers []string) (int, error) {
	total := 0
	var failed int
	for _, ticker := range tickers {
		n, err := im.importTicker(ticker)
		if err != nil {
			log.Printf("Error importing news for %s: %v", ticker, err)
			failed++
			continue
		}
		total += n
	}
	if failed == len(tickers) && len(tickers) > 0 {
		return total, fmt.Errorf("news import failed for all %d tickers", failed)
	}
	return total, nil
}

func (im *Importer) importTicker(ticker string) (int, error) {
	articles, err := im.fetchFeed(ticker)
	if err != nil {
		return 0, err
	}

	created := 0
	for _, article := range articles {
		if im.alreadyImported(ticker, article.Title) {
			continue
		}

		content := article.Title
		if article.Description != "" {
			content = article.Title + ". " + article.Description
		}
		entry, err := im.knowledge.Append(ticker, models.EventTypeNews, content, article.PublishedAt)
		if err != nil {
			log.Printf("Warning: could not store headline for %s: %v", ticker, err)
			continue
		}
		created++
		log.Printf("News for %s (sentiment %.2f): %s", ticker, entry.Sentiment, article.Title)

		if im.archive != nil {
			if err := im.archive.SaveArticle(article); err != nil {
				log.Printf("Warning: article archive failed: %v", err)
			}
		}
	}
	return created, nil
}

// fetchFeed pulls and parses the RSS feed for the ticker
func (im *Importer) fetchFeed(ticker string) ([]Article, error) {
	url := fmt.Sprintf(feedURLTemplate, strings.ToLower(ticker))
	resp, err := im.client.R().Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news feed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("news feed returned HTTP %d", resp.StatusCode())
	}

	return ParseFeed(ticker, resp.String())
}

type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

// ParseFeed extracts articles from RSS feed XML
func ParseFeed(ticker, body string) ([]Article, error) {
	var feed rssFeed
	if err := xml.Unmarshal([]byte(body), &feed); err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	now := time.Now()
	var articles []Article
	for _, item := range feed.Channel.Items {
		if len(articles) >= maxPerTicker {
			break
		}

		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		published := now
		if raw := strings.TrimSpace(item.PubDate); raw != "" {
			if t, err := time.Parse(time.RFC1123, raw); err == nil {
				published = t
			} else if t, err := time.Parse(time.RFC1123Z, raw); err == nil {
				published = t
			}
		}

		articles = append(articles, Article{
			Ticker:      ticker,
			Title:       title,
			Link:        strings.TrimSpace(item.Link),
			Description: cleanDescription(item.Description),
			PublishedAt: published,
			FetchedAt:   now,
		})
	}

	return articles, nil
}

// cleanDescription strips embedded markup from a feed description
func cleanDescription(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return raw
	}
	return strings.TrimSpace(doc.Text())
}

func (im *Importer) alreadyImported(ticker, title string) bool {
	var count int64
	im.db.Model(&models.KnowledgeEntry{}).
		Where("ticker = ? AND event_type = ? AND content LIKE ?",
			ticker, models.EventTypeNews, title+"%").
		Count(&count)
	return count > 0
}
