package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/capture"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/metrics"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
	"github.com/AnshRaj112/daily-journal-backend/internal/upload"
)

// Workspace is everything one signed-in user works with: the entry
// collection and the upload controller. Capture controllers are created
// per connection through NewCapture and feed the same collection.
type Workspace struct {
	UserID  string
	Entries *entries.Store
	Uploads *upload.Controller

	ids       *models.IDSequence
	blobs     blob.Store
	publisher notify.Publisher
	timeslice time.Duration
	tick      time.Duration
	log       zerolog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

// Done is closed when the workspace is closed. Connections bound to the
// workspace end when it fires.
func (w *Workspace) Done() <-chan struct{} { return w.done }

// close stops the workspace from accepting writes. Handles still held by
// open connections or background jobs fail with entries.ErrClosed.
func (w *Workspace) close() {
	w.closeOnce.Do(func() {
		w.Entries.Close()
		close(w.done)
	})
}

// SaveEntry appends a controller's entry to the collection. A persistence
// failure keeps the entry and is returned as a warning.
func (w *Workspace) SaveEntry(ctx context.Context, e models.JournalEntry) (models.JournalEntry, error) {
	saved, err := w.Entries.Append(ctx, e)
	if err != nil && !errors.Is(err, apperr.ErrStorageWriteFailed) {
		if rerr := w.blobs.Release(ctx, e.BlobRef); rerr != nil {
			w.log.Warn().Err(rerr).Str("ref", e.BlobRef).Msg("release unsaved entry blob")
		}
		return models.JournalEntry{}, err
	}
	w.publish(notify.Event{Type: notify.EventEntrySaved, EntryID: saved.ID, Entry: &saved})
	return saved, err
}

// DeleteEntry removes an entry and releases its video.
func (w *Workspace) DeleteEntry(ctx context.Context, id int64) error {
	_, existed := w.Entries.Get(id)
	err := w.Entries.Delete(ctx, id)
	if existed && (err == nil || errors.Is(err, apperr.ErrStorageWriteFailed)) {
		w.publish(notify.Event{Type: notify.EventEntryDeleted, EntryID: id})
	}
	return err
}

// NewCapture returns a capture controller bound to src whose saved
// recordings land in this workspace.
func (w *Workspace) NewCapture(src capture.MediaSource, opts ...capture.Option) *capture.Controller {
	base := []capture.Option{
		capture.WithIDSequence(w.ids),
		capture.WithTimings(w.timeslice, w.tick),
	}
	return capture.NewController(src, w.blobs, append(base, opts...)...)
}

func (w *Workspace) publish(ev notify.Event) {
	if w.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.publisher.Publish(ctx, w.UserID, ev); err != nil {
		w.log.Warn().Err(err).Str("event", ev.Type).Msg("publish entry event")
	}
}

// Manager opens one workspace per signed-in user and closes it on logout.
type Manager struct {
	persister entries.Persister
	blobs     blob.Store
	publisher notify.Publisher
	maxUpload int64
	timeslice time.Duration
	tick      time.Duration
	// releaseOnClose frees entry blobs when a workspace closes. Set it when
	// blobs do not outlive the process.
	releaseOnClose bool
	log            zerolog.Logger

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

type ManagerOption func(*Manager)

func WithPublisher(p notify.Publisher) ManagerOption {
	return func(m *Manager) { m.publisher = p }
}

func WithMaxUpload(n int64) ManagerOption {
	return func(m *Manager) { m.maxUpload = n }
}

func WithCaptureTimings(timeslice, tick time.Duration) ManagerOption {
	return func(m *Manager) { m.timeslice, m.tick = timeslice, tick }
}

// WithSessionScopedBlobs releases every entry blob when its workspace closes.
func WithSessionScopedBlobs() ManagerOption {
	return func(m *Manager) { m.releaseOnClose = true }
}

func NewManager(persister entries.Persister, blobs blob.Store, opts ...ManagerOption) *Manager {
	m := &Manager{
		persister:  persister,
		blobs:      blobs,
		maxUpload:  upload.MaxFileSize,
		timeslice:  capture.DefaultTimeslice,
		tick:       capture.DefaultTick,
		log:        logger.WithComponent("session"),
		workspaces: make(map[string]*Workspace),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open returns userID's workspace, loading the collection on first use.
func (m *Manager) Open(ctx context.Context, userID string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws, ok := m.workspaces[userID]; ok {
		return ws, nil
	}

	ids := models.NewIDSequence(nil)
	store, err := entries.Open(ctx, userID, m.persister, m.blobs, entries.WithIDSequence(ids))
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	ws := &Workspace{
		UserID:    userID,
		Entries:   store,
		ids:       ids,
		blobs:     m.blobs,
		publisher: m.publisher,
		timeslice: m.timeslice,
		tick:      m.tick,
		log:       m.log.With().Str("user_id", userID).Logger(),
		done:      make(chan struct{}),
	}
	ws.Uploads = upload.NewController(m.blobs,
		upload.WithIDSequence(ids),
		upload.WithMaxSize(m.maxUpload),
	)
	m.workspaces[userID] = ws
	metrics.WorkspaceOpened()
	m.log.Debug().Str("user_id", userID).Int("entries", store.Len()).Msg("workspace opened")
	return ws, nil
}

// Close tears down userID's workspace, releasing any held upload. The old
// workspace stops persisting before a later Open can load the collection.
func (m *Manager) Close(ctx context.Context, userID string) {
	m.mu.Lock()
	ws, ok := m.workspaces[userID]
	if ok {
		ws.close()
		delete(m.workspaces, userID)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.teardown(ctx, ws)
}

// CloseAll tears down every open workspace.
func (m *Manager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = make(map[string]*Workspace)
	for _, ws := range all {
		ws.close()
	}
	m.mu.Unlock()
	for _, ws := range all {
		m.teardown(ctx, ws)
	}
}

// Len returns the number of open workspaces.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workspaces)
}

func (m *Manager) teardown(ctx context.Context, ws *Workspace) {
	ws.Uploads.Close(ctx)
	if m.releaseOnClose {
		ws.Entries.ReleaseAll(ctx)
	}
	metrics.WorkspaceClosed()
	m.log.Debug().Str("user_id", ws.UserID).Msg("workspace closed")
}
