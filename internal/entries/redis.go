package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// RedisPersister stores each collection as one JSON string under its key.
// Collections never expire.
type RedisPersister struct {
	client *redis.Client
}

func NewRedisPersister(client *redis.Client) *RedisPersister {
	return &RedisPersister{client: client}
}

func (p *RedisPersister) Load(ctx context.Context, key string) ([]models.JournalEntry, error) {
	val, err := p.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []models.JournalEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var out []models.JournalEntry
	if err := json.Unmarshal(val, &out); err != nil {
		return nil, fmt.Errorf("decode collection %s: %w", key, err)
	}
	return out, nil
}

func (p *RedisPersister) Save(ctx context.Context, key string, entries []models.JournalEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return p.client.Set(ctx, key, data, 0).Err()
}

func (p *RedisPersister) Name() string { return "redis" }

// Keys scans for every stored collection key.
func (p *RedisPersister) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := p.client.Scan(ctx, 0, KeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}
