package summary

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/metrics"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
)

var (
	// ErrInProgress is returned when the entry already has a job running.
	ErrInProgress = apperr.Newf(apperr.CodeConflict, "A summary is already being generated for this entry")
	// ErrShutdown is returned once the service stopped accepting jobs.
	ErrShutdown = errors.New("summary: service shut down")
)

// EntryStore is the part of a user's entry store the service needs.
type EntryStore interface {
	Get(id int64) (models.JournalEntry, bool)
	AttachSummary(ctx context.Context, id int64, s models.Summary) (models.JournalEntry, error)
}

type JobState string

const (
	JobNone    JobState = "none"
	JobPending JobState = "pending"
	JobReady   JobState = "ready"
	JobFailed  JobState = "failed"
)

// Status describes the summary of one entry.
type Status struct {
	EntryID int64           `json:"entry_id"`
	State   JobState        `json:"state"`
	Summary *models.Summary `json:"summary,omitempty"`
	Error   *apperr.View    `json:"error,omitempty"`
}

type jobKey struct {
	userID  string
	entryID int64
}

// Service runs generations in the background and attaches results to
// the entry. At most one job runs per entry.
type Service struct {
	gen     Generator
	pub     notify.Publisher
	timeout time.Duration
	log     zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	closed   bool
	inflight map[jobKey]struct{}
	failures map[jobKey]*apperr.View
}

type ServiceOption func(*Service)

// WithTimeout bounds a single generation.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.timeout = d }
}

// WithPublisher sets where summary_ready and summary_failed go.
func WithPublisher(pub notify.Publisher) ServiceOption {
	return func(s *Service) { s.pub = pub }
}

func NewService(gen Generator, opts ...ServiceOption) *Service {
	base, cancel := context.WithCancel(context.Background())
	s := &Service{
		gen:      gen,
		timeout:  time.Minute,
		log:      logger.WithComponent("summary"),
		base:     base,
		cancel:   cancel,
		inflight: make(map[jobKey]struct{}),
		failures: make(map[jobKey]*apperr.View),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generator returns the active strategy.
func (s *Service) Generator() Generator { return s.gen }

// Request starts generating a summary for the entry. A new summary
// replaces any existing one when the job succeeds.
func (s *Service) Request(ctx context.Context, userID string, store EntryStore, entryID int64) error {
	entry, ok := store.Get(entryID)
	if !ok {
		return apperr.Newf(apperr.CodeNotFound, "Entry not found")
	}
	key := jobKey{userID, entryID}
	if err := s.claim(key); err != nil {
		return err
	}

	s.log.Debug().Str("user_id", userID).Int64("entry_id", entryID).Msg("summary requested")
	go s.run(key, store, entry)
	return nil
}

// Generate runs one generation synchronously and attaches the result. It
// shares the one-job-per-entry rule with Request.
func (s *Service) Generate(ctx context.Context, userID string, store EntryStore, entryID int64) (models.JournalEntry, error) {
	entry, ok := store.Get(entryID)
	if !ok {
		return models.JournalEntry{}, apperr.Newf(apperr.CodeNotFound, "Entry not found")
	}
	key := jobKey{userID, entryID}
	if err := s.claim(key); err != nil {
		return models.JournalEntry{}, err
	}
	defer s.done(key)
	return s.generate(ctx, key, store, entry)
}

// claim marks key in flight and clears its last failure.
func (s *Service) claim(key jobKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrShutdown
	}
	if _, busy := s.inflight[key]; busy {
		return ErrInProgress
	}
	s.inflight[key] = struct{}{}
	delete(s.failures, key)
	s.wg.Add(1)
	return nil
}

func (s *Service) done(key jobKey) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
	s.wg.Done()
}

// Forget drops what the service remembers about a deleted entry.
func (s *Service) Forget(userID string, entryID int64) {
	s.mu.Lock()
	delete(s.failures, jobKey{userID, entryID})
	s.mu.Unlock()
}

func (s *Service) run(key jobKey, store EntryStore, entry models.JournalEntry) {
	defer s.done(key)

	ctx, cancel := context.WithTimeout(s.base, s.timeout)
	defer cancel()
	_, _ = s.generate(ctx, key, store, entry)
}

func (s *Service) generate(ctx context.Context, key jobKey, store EntryStore, entry models.JournalEntry) (models.JournalEntry, error) {
	start := time.Now()
	sum, err := s.gen.Generate(ctx, entry)
	metrics.SummaryGenerated(s.gen.Name(), err == nil, time.Since(start))
	if err != nil {
		if apperr.CodeOf(err) != apperr.CodeSummaryGenerationFailed {
			err = apperr.Wrap(apperr.CodeSummaryGenerationFailed, err)
		}
		s.recordFailure(key, err)
		return models.JournalEntry{}, err
	}

	updated, err := store.AttachSummary(ctx, key.entryID, sum)
	switch {
	case err == nil:
	case errors.Is(err, apperr.ErrStorageWriteFailed):
		// The summary is attached in memory; only persistence failed.
		s.log.Warn().Err(err).Int64("entry_id", key.entryID).Msg("summary kept in memory only")
	default:
		s.Forget(key.userID, key.entryID)
		s.log.Info().Err(err).Int64("entry_id", key.entryID).Msg("summary dropped, entry no longer available")
		return models.JournalEntry{}, err
	}

	s.log.Info().
		Str("user_id", key.userID).
		Int64("entry_id", key.entryID).
		Str("mood", string(sum.Mood)).
		Dur("took", time.Since(start)).
		Msg("summary ready")
	s.publish(key.userID, notify.Event{Type: notify.EventSummaryReady, EntryID: key.entryID, Entry: &updated, Summary: &sum})
	return updated, err
}

func (s *Service) recordFailure(key jobKey, err error) {
	view := apperr.ViewOf(err)
	s.mu.Lock()
	s.failures[key] = view
	s.mu.Unlock()
	s.log.Warn().Err(err).Str("user_id", key.userID).Int64("entry_id", key.entryID).Msg("summary generation failed")
	s.publish(key.userID, notify.Event{Type: notify.EventSummaryFailed, EntryID: key.entryID, Error: view})
}

func (s *Service) publish(userID string, ev notify.Event) {
	if s.pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.pub.Publish(ctx, userID, ev); err != nil {
		s.log.Warn().Err(err).Str("event", ev.Type).Msg("publish summary event")
	}
}

// Status reports the summary state of an entry.
func (s *Service) Status(userID string, store EntryStore, entryID int64) (Status, error) {
	entry, ok := store.Get(entryID)
	if !ok {
		return Status{}, apperr.Newf(apperr.CodeNotFound, "Entry not found")
	}
	key := jobKey{userID, entryID}
	st := Status{EntryID: entryID, State: JobNone, Summary: entry.Summary}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, pending := s.inflight[key]
	switch {
	case pending:
		st.State = JobPending
	case s.failures[key] != nil:
		st.State = JobFailed
		st.Error = s.failures[key]
	case entry.Summary != nil:
		st.State = JobReady
	}
	return st, nil
}

// Shutdown stops accepting jobs and waits for running ones. When ctx ends
// first, running jobs are cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.cancel()
		<-done
		return fmt.Errorf("summary shutdown: %w", ctx.Err())
	}
}
