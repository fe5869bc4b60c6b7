package entries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// CollectionName is the Mongo collection holding one document per user.
const CollectionName = "journal_collections"

type collectionDoc struct {
	Key       string                `bson:"_id"`
	Entries   []models.JournalEntry `bson:"entries"`
	UpdatedAt time.Time             `bson:"updated_at"`
}

// MongoPersister stores each collection as a single document keyed by the
// storage key, replaced wholesale on every save.
type MongoPersister struct {
	col *mongo.Collection
}

func NewMongoPersister(db *mongo.Database) *MongoPersister {
	return &MongoPersister{col: db.Collection(CollectionName)}
}

// EnsureIndexes configures the updated_at index used by the CLI listing.
func (p *MongoPersister) EnsureIndexes(ctx context.Context) error {
	_, err := p.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "updated_at", Value: -1}},
		Options: options.Index().SetName("idx_updated_at"),
	})
	return err
}

func (p *MongoPersister) Load(ctx context.Context, key string) ([]models.JournalEntry, error) {
	var doc collectionDoc
	err := p.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []models.JournalEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mongo find %s: %w", key, err)
	}
	if doc.Entries == nil {
		doc.Entries = []models.JournalEntry{}
	}
	return doc.Entries, nil
}

func (p *MongoPersister) Save(ctx context.Context, key string, entries []models.JournalEntry) error {
	doc := collectionDoc{Key: key, Entries: entries, UpdatedAt: time.Now().UTC()}
	_, err := p.col.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo replace %s: %w", key, err)
	}
	return nil
}

func (p *MongoPersister) Name() string { return "mongo" }

// Keys lists stored collection keys, most recently updated first.
func (p *MongoPersister) Keys(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.M{"updated_at": -1})
	cursor, err := p.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		Key string `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(docs))
	for _, d := range docs {
		keys = append(keys, d.Key)
	}
	return keys, nil
}
