package entries

import (
	"context"
	"sort"
	"sync"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// KeyPrefix namespaces every user collection in storage.
const KeyPrefix = "videos_"

// Key is the storage key holding userID's collection.
func Key(userID string) string {
	return KeyPrefix + userID
}

// Persister reads and writes whole collections. Load returns an empty slice
// and no error when nothing has been stored under key yet.
type Persister interface {
	Load(ctx context.Context, key string) ([]models.JournalEntry, error)
	Save(ctx context.Context, key string, entries []models.JournalEntry) error
	Name() string
}

// Lister is implemented by persisters that can enumerate their collections.
type Lister interface {
	Keys(ctx context.Context) ([]string, error)
}

// MemoryPersister keeps collections for the life of the process.
type MemoryPersister struct {
	mu   sync.RWMutex
	data map[string][]models.JournalEntry
}

func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{data: make(map[string][]models.JournalEntry)}
}

func (p *MemoryPersister) Load(ctx context.Context, key string) ([]models.JournalEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return cloneEntries(p.data[key]), nil
}

func (p *MemoryPersister) Save(ctx context.Context, key string, entries []models.JournalEntry) error {
	p.mu.Lock()
	p.data[key] = cloneEntries(entries)
	p.mu.Unlock()
	return nil
}

func (p *MemoryPersister) Name() string { return "memory" }

func (p *MemoryPersister) Keys(ctx context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.data))
	for k := range p.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func cloneEntries(in []models.JournalEntry) []models.JournalEntry {
	out := make([]models.JournalEntry, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}

func cloneEntry(e models.JournalEntry) models.JournalEntry {
	if e.File != nil {
		f := *e.File
		e.File = &f
	}
	if e.DurationSeconds != nil {
		d := *e.DurationSeconds
		e.DurationSeconds = &d
	}
	if e.Summary != nil {
		s := *e.Summary
		s.MainThoughts = append([]string(nil), s.MainThoughts...)
		s.ActionItems = append([]string(nil), s.ActionItems...)
		s.Topics = append([]string(nil), s.Topics...)
		e.Summary = &s
	}
	return e
}
