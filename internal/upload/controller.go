// Package upload turns a user-selected video file into a journal entry. The
// file picker and drag-and-drop paths share one controller and produce the
// same result for the same file.
package upload

import (
	"context"
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

// ErrClosed is returned once the controller's session ended.
var ErrClosed = apperr.Newf(apperr.CodeInvalidState, "This upload session has ended. Please reload and try again.")

type State string

const (
	StateIdle       State = "idle"
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateError      State = "error"
)

// Snapshot is the externally visible controller state.
type Snapshot struct {
	State      State                `json:"state"`
	File       *models.FileMetadata `json:"file,omitempty"`
	PreviewURL string               `json:"preview_url,omitempty"`
	Error      *apperr.View         `json:"error,omitempty"`
}

type heldFile struct {
	info blob.Info
	meta models.FileMetadata
}

// Controller is the upload state machine: Idle, Processing, then Ready or
// Error. It holds at most one blob and releases it on reset or reselection.
type Controller struct {
	mu      sync.Mutex
	state   State
	closed  bool
	gen     uint64
	held    *heldFile
	lastErr error

	blobs   blob.Store
	ids     *models.IDSequence
	now     func() time.Time
	maxSize int64
	onSave  func(models.JournalEntry)
	log     zerolog.Logger
}

type Option func(*Controller)

func WithIDSequence(ids *models.IDSequence) Option {
	return func(c *Controller) { c.ids = ids }
}

func WithMaxSize(n int64) Option {
	return func(c *Controller) { c.maxSize = n }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// OnEntrySaved registers a callback run after Save hands off an entry.
func OnEntrySaved(fn func(models.JournalEntry)) Option {
	return func(c *Controller) { c.onSave = fn }
}

func NewController(blobs blob.Store, opts ...Option) *Controller {
	c := &Controller{
		state:   StateIdle,
		blobs:   blobs,
		now:     time.Now,
		maxSize: MaxFileSize,
		log:     logger.WithComponent("upload"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = models.NewIDSequence(c.now)
	}
	return c
}

// SelectFile validates f and, on success, stores its bytes so the
// controller becomes Ready. Any previously held file is released first.
func (c *Controller) SelectFile(ctx context.Context, f File) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.Snapshot(), ErrClosed
	}
	if c.state == StateProcessing {
		c.mu.Unlock()
		return c.Snapshot(), apperr.Newf(apperr.CodeInvalidState, "An upload is already being processed")
	}
	c.releaseLocked(ctx)
	c.gen++
	gen := c.gen
	c.state = StateProcessing
	c.lastErr = nil
	c.mu.Unlock()

	held, err := c.process(ctx, f)

	c.mu.Lock()
	if c.gen != gen {
		// Reset while processing; the result belongs to nobody.
		c.mu.Unlock()
		if held != nil {
			c.release(ctx, held.info.Ref)
		}
		return c.Snapshot(), apperr.Newf(apperr.CodeInvalidState, "The upload was cleared while processing")
	}
	if err != nil {
		c.state = StateError
		c.lastErr = err
		c.mu.Unlock()
		c.rejected(err)
		return c.Snapshot(), err
	}
	c.held = held
	c.state = StateReady
	c.mu.Unlock()

	c.log.Info().
		Str("name", held.meta.Name).
		Int64("bytes", held.meta.ByteSize).
		Str("content_type", held.meta.ContentType).
		Msg("upload ready")
	return c.Snapshot(), nil
}

// Reject fails a selection the transport refused before the file could be
// read. It has the same effect as SelectFile failing validation.
func (c *Controller) Reject(ctx context.Context, err error) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.Snapshot(), ErrClosed
	}
	if c.state == StateProcessing {
		c.mu.Unlock()
		return c.Snapshot(), apperr.Newf(apperr.CodeInvalidState, "An upload is already being processed")
	}
	c.releaseLocked(ctx)
	c.gen++
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()

	c.rejected(err)
	return c.Snapshot(), err
}

func (c *Controller) rejected(err error) {
	code := string(apperr.CodeOf(err))
	metrics.UploadRejected(code)
	c.log.Info().Str("code", code).Msg("upload rejected")
}

func (c *Controller) process(ctx context.Context, f File) (*heldFile, error) {
	if err := Validate(f, c.maxSize); err != nil {
		return nil, err
	}
	rc, err := f.Open()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeNoFile, fmt.Errorf("open upload: %w", err))
	}
	defer rc.Close()

	info, err := c.blobs.Put(ctx, f.ContentType(), rc)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, fmt.Errorf("store upload: %w", err))
	}
	return &heldFile{
		info: info,
		meta: models.FileMetadata{
			Name:        f.Name(),
			ByteSize:    f.Size(),
			ContentType: f.ContentType(),
		},
	}, nil
}

// Save hands the held file off as an uploaded entry and returns to Idle.
// The blob now belongs to the entry and is not released here.
func (c *Controller) Save() (models.JournalEntry, error) {
	c.mu.Lock()
	if c.state != StateReady || c.held == nil {
		c.mu.Unlock()
		return models.JournalEntry{}, apperr.Newf(apperr.CodeInvalidState, "No file is ready to save")
	}
	meta := c.held.meta
	entry := models.JournalEntry{
		ID:        c.ids.Next(),
		BlobRef:   c.held.info.Ref,
		CreatedAt: c.now().UTC(),
		Source:    models.SourceUploaded,
		File:      &meta,
		MimeType:  meta.ContentType,
	}
	c.held = nil
	c.state = StateIdle
	c.lastErr = nil
	onSave := c.onSave
	c.mu.Unlock()

	if onSave != nil {
		onSave(entry)
	}
	return entry, nil
}

// Reset releases any held file and returns to Idle. A selection still
// processing is dropped when it finishes.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseLocked(ctx)
	c.gen++
	c.state = StateIdle
	c.lastErr = nil
}

// Close releases any held file and rejects later selections. A selection
// still processing is dropped when it finishes.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.releaseLocked(ctx)
	c.gen++
	c.state = StateIdle
	c.lastErr = nil
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{State: c.state}
	if c.held != nil {
		meta := c.held.meta
		snap.File = &meta
		snap.PreviewURL = c.blobs.URL(c.held.info.Ref)
	}
	snap.Error = apperr.ViewOf(c.lastErr)
	return snap
}

func (c *Controller) releaseLocked(ctx context.Context) {
	if c.held == nil {
		return
	}
	c.release(ctx, c.held.info.Ref)
	c.held = nil
}

func (c *Controller) release(ctx context.Context, ref string) {
	if err := c.blobs.Release(ctx, ref); err != nil {
		c.log.Warn().Err(err).Str("ref", ref).Msg("release held upload")
	}
}
