package sentiment

import (
	"fmt"
	"sort"
	"time"

	"lse_trading_system/models"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// KnowledgeService appends to and searches the knowledge log
type KnowledgeService struct {
	db       *gorm.DB
	embedder *Embedder
}

// NewKnowledgeService creates a new knowledge service
func NewKnowledgeService(db *gorm.DB, embedder *Embedder) *KnowledgeService {
	return &KnowledgeService{db: db, embedder: embedder}
}

// Append embeds and scores the content, then writes one knowledge entry
func (ks *KnowledgeService) Append(ticker, eventType, content string, at time.Time) (*models.KnowledgeEntry, error) {
	vec, err := ks.embedder.Embed(content)
	if err != nil {
		return nil, fmt.Errorf("failed to embed content: %w", err)
	}

	entry := &models.KnowledgeEntry{
		CreatedAt: at,
		Ticker:    ticker,
		EventType: eventType,
		Content:   content,
		Embedding: pgvector.NewVector(vec),
		Sentiment: Score(content),
	}

	if err := ks.db.Create(entry).Error; err != nil {
		return nil, fmt.Errorf("failed to store knowledge entry: %w", err)
	}
	return entry, nil
}

// SearchResult is one similarity hit
type SearchResult struct {
	Entry      models.KnowledgeEntry `json:"entry"`
	Similarity float64               `json:"similarity"`
}

// SearchSimilar returns the limit entries most similar to the query text.
// On postgres the pgvector cosine operator does the ranking; other dialects
// rank in process over the most recent entries.
func (ks *KnowledgeService) SearchSimilar(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	queryVec, err := ks.embedder.Embed(query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	if ks.db.Dialector.Name() == "postgres" {
		return ks.searchPgvector(queryVec, limit)
	}
	return ks.searchInProcess(queryVec, limit)
}

func (ks *KnowledgeService) searchPgvector(queryVec []float32, limit int) ([]SearchResult, error) {
	var entries []models.KnowledgeEntry
	err := ks.db.Raw(
		"SELECT * FROM knowledge_entries ORDER BY embedding <=> ? LIMIT ?",
		pgvector.NewVector(queryVec), limit,
	).Scan(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, SearchResult{
			Entry:      e,
			Similarity: CosineSimilarity(queryVec, e.Embedding.Slice()),
		})
	}
	return results, nil
}

func (ks *KnowledgeService) searchInProcess(queryVec []float32, limit int) ([]SearchResult, error) {
	// Bounded scan; the log is append-only and recent entries matter most
	var entries []models.KnowledgeEntry
	err := ks.db.Order("created_at DESC").Limit(1000).Find(&entries).Error
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(entries))
	for _, e := range entries {
		results = append(results, SearchResult{
			Entry:      e,
			Similarity: CosineSimilarity(queryVec, e.Embedding.Slice()),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// RecentNewsSentiment returns the mean sentiment of NEWS entries for the
// ticker since the given time. No entries means neutral zero.
func (ks *KnowledgeService) RecentNewsSentiment(ticker string, since time.Time) (float64, error) {
	var entries []models.KnowledgeEntry
	err := ks.db.
		Where("ticker = ? AND event_type = ? AND created_at >= ?", ticker, models.EventTypeNews, since).
		Find(&entries).Error
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	var sum float64
	for _, e := range entries {
		sum += e.Sentiment
	}
	return sum / float64(len(entries)), nil
}
