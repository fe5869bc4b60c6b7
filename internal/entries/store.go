// Package entries holds a user's journal collection: newest first, persisted
// in full after every mutation, with dashboard statistics derived from it.
package entries

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/metrics"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// ErrClosed is returned by mutations on a store whose session ended. A
// later session loads the collection afresh and owns it from then on.
var ErrClosed = apperr.Newf(apperr.CodeInvalidState, "Your journal session has ended. Please reload and try again.")

// Store is one user's collection. It is safe for concurrent use.
type Store struct {
	mu        sync.RWMutex
	closed    bool
	key       string
	entries   []models.JournalEntry
	persister Persister
	blobs     blob.Store
	ids       *models.IDSequence
	now       func() time.Time
	log       zerolog.Logger
}

// Option customises a Store.
type Option func(*Store)

// WithIDSequence shares an id sequence with the controllers producing entries.
func WithIDSequence(ids *models.IDSequence) Option {
	return func(s *Store) { s.ids = ids }
}

// WithClock overrides the clock used for stats and fallback timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Open loads userID's collection from p.
func Open(ctx context.Context, userID string, p Persister, blobs blob.Store, opts ...Option) (*Store, error) {
	s := &Store{
		key:       Key(userID),
		persister: p,
		blobs:     blobs,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.ids == nil {
		s.ids = models.NewIDSequence(s.now)
	}
	s.log = logger.WithComponent("entries").With().
		Str("key", s.key).
		Str("backend", p.Name()).
		Logger()

	loaded, err := p.Load(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	for _, e := range loaded {
		s.ids.Observe(e.ID)
	}
	s.entries = loaded
	s.log.Debug().Int("entries", len(loaded)).Msg("collection loaded")
	return s, nil
}

// Key is the storage key of this collection.
func (s *Store) Key() string { return s.key }

// Append prepends entry and persists. A zero ID or CreatedAt is filled in.
// A StorageWriteFailed error leaves the entry in memory.
func (s *Store) Append(ctx context.Context, entry models.JournalEntry) (models.JournalEntry, error) {
	if entry.ID == 0 {
		entry.ID = s.ids.Next()
	} else {
		s.ids.Observe(entry.ID)
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.JournalEntry{}, ErrClosed
	}
	if s.indexOf(entry.ID) >= 0 {
		return models.JournalEntry{}, apperr.Newf(apperr.CodeConflict, "entry %d already exists", entry.ID)
	}
	s.entries = append([]models.JournalEntry{entry}, s.entries...)
	metrics.EntrySaved(string(entry.Source))
	s.log.Info().Int64("entry_id", entry.ID).Str("source", string(entry.Source)).Msg("entry appended")
	return cloneEntry(entry), s.persistLocked(ctx)
}

// Delete removes the entry with id, releases its blob and persists. Unknown
// ids are ignored.
func (s *Store) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	i := s.indexOf(id)
	if i < 0 {
		return nil
	}
	removed := s.entries[i]
	s.entries = append(s.entries[:i:i], s.entries[i+1:]...)

	if removed.BlobRef != "" && s.blobs != nil {
		if err := s.blobs.Release(ctx, removed.BlobRef); err != nil && !errors.Is(err, blob.ErrNotFound) {
			s.log.Warn().Err(err).Int64("entry_id", id).Msg("release entry blob")
		}
	}
	metrics.EntryDeleted()
	s.log.Info().Int64("entry_id", id).Msg("entry deleted")
	return s.persistLocked(ctx)
}

// AttachSummary sets or replaces the summary of entry id and persists.
func (s *Store) AttachSummary(ctx context.Context, id int64, summary models.Summary) (models.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return models.JournalEntry{}, ErrClosed
	}
	i := s.indexOf(id)
	if i < 0 {
		return models.JournalEntry{}, apperr.Newf(apperr.CodeNotFound, "entry %d not found", id)
	}
	s.entries[i].Summary = &summary
	updated := cloneEntry(s.entries[i])
	return updated, s.persistLocked(ctx)
}

// List returns a copy of the collection, newest first.
func (s *Store) List() []models.JournalEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneEntries(s.entries)
}

// Get returns the entry with id.
func (s *Store) Get(id int64) (models.JournalEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.JournalEntry{}, false
	}
	return cloneEntry(s.entries[i]), true
}

// Len is the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats computes the dashboard figures as of now.
func (s *Store) Stats() models.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ComputeStats(s.entries, s.now())
}

// Close rejects every later mutation. It waits for a mutation in progress,
// so once it returns nothing more is persisted through this store.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// ReleaseAll releases the blob of every entry still held. Used when blobs
// only live as long as the session that created them.
func (s *Store) ReleaseAll(ctx context.Context) {
	if s.blobs == nil {
		return
	}
	s.mu.RLock()
	refs := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		if e.BlobRef != "" {
			refs = append(refs, e.BlobRef)
		}
	}
	s.mu.RUnlock()
	for _, ref := range refs {
		if err := s.blobs.Release(ctx, ref); err != nil && !errors.Is(err, blob.ErrNotFound) && !errors.Is(err, blob.ErrReleased) {
			s.log.Warn().Err(err).Str("ref", ref).Msg("release blob on close")
		}
	}
}

func (s *Store) indexOf(id int64) int {
	for i := range s.entries {
		if s.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.persister.Save(ctx, s.key, cloneEntries(s.entries)); err != nil {
		metrics.StorageWriteFailed(s.persister.Name())
		s.log.Error().Err(err).Int("entries", len(s.entries)).Msg("persist collection failed; keeping in-memory state")
		return apperr.Wrap(apperr.CodeStorageWriteFailed, err)
	}
	return nil
}
