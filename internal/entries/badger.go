package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// BadgerPersister keeps collections in an embedded Badger database, one
// JSON value per key.
type BadgerPersister struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the database at path. An empty path opens
// an in-memory instance.
func OpenBadger(path string) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerPersister{db: db}, nil
}

func (p *BadgerPersister) Close() error { return p.db.Close() }

func (p *BadgerPersister) Load(ctx context.Context, key string) ([]models.JournalEntry, error) {
	out := []models.JournalEntry{}
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &out)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []models.JournalEntry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger load %s: %w", key, err)
	}
	return out, nil
}

func (p *BadgerPersister) Save(ctx context.Context, key string, entries []models.JournalEntry) error {
	buf, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
}

// Keys lists every stored collection key.
func (p *BadgerPersister) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(KeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (p *BadgerPersister) Name() string { return "badger" }
