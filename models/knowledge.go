package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// Knowledge entry event types
const (
	EventTypeNews        = "NEWS"
	EventTypeTradeSignal = "TRADE_SIGNAL"
)

// EmbeddingDim is the fixed dimensionality of stored embedding vectors.
const EmbeddingDim = 1536

// KnowledgeEntry is one record in the append-only knowledge log. News items
// and executed trade signals both land here so similarity search covers the
// full event history of a ticker.
type KnowledgeEntry struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time       `gorm:"index" json:"created_at"`
	Ticker    string          `gorm:"index" json:"ticker"`
	EventType string          `gorm:"index;not null" json:"event_type"` // NEWS, TRADE_SIGNAL
	Content   string          `gorm:"type:text" json:"content"`
	Embedding pgvector.Vector `gorm:"type:vector(1536)" json:"-"`
	Sentiment float64         `json:"sentiment"`
}

// MigrateKnowledgeModels runs database migrations for the knowledge log.
// On postgres the vector extension must exist before the column migrates.
func MigrateKnowledgeModels(db *gorm.DB) error {
	if db.Dialector.Name() == "postgres" {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return err
		}
	}
	return db.AutoMigrate(&KnowledgeEntry{})
}
