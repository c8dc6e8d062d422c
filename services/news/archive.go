package news

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	archiveDBName     = "lse_trading"
	archiveCollection = "raw_articles"
	archiveTimeout    = 10 * time.Second
)

// Archive stores raw fetched articles in MongoDB. The knowledge log only
// keeps the distilled content; the archive keeps everything as fetched.
// A missing MONGODB_URI disables archiving without being an error.
type Archive struct {
	client *mongo.Client
}

// NewArchive connects to MongoDB. An empty uri returns (nil, nil) so the
// importer runs without an archive.
func NewArchive(uri string) (*Archive, error) {
	if uri == "" {
		log.Println("MONGODB_URI not set, article archive disabled")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("MongoDB ping failed: %w", err)
	}

	log.Println("Article archive connected")
	return &Archive{client: client}, nil
}

// SaveArticle stores one raw article document
func (a *Archive) SaveArticle(article Article) error {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	coll := a.client.Database(archiveDBName).Collection(archiveCollection)
	_, err := coll.InsertOne(ctx, article)
	return err
}

// Close disconnects from MongoDB
func (a *Archive) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	return a.client.Disconnect(ctx)
}
