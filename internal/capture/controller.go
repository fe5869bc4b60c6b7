// Package capture drives one video recording session: acquiring the
// camera, collecting encoded chunks, counting elapsed seconds and handing
// the finished recording off as a journal entry.
package capture

import (
	"bytes"
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

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateRecording    State = "recording"
	StateStopped      State = "stopped"
	StateError        State = "error"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("capture: controller closed")

const (
	DefaultTimeslice = time.Second
	DefaultTick      = time.Second
)

// Snapshot is the externally visible controller state.
type Snapshot struct {
	State          State        `json:"state"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	MimeType       string       `json:"mime_type,omitempty"`
	PreviewURL     string       `json:"preview_url,omitempty"`
	Error          *apperr.View `json:"error,omitempty"`
}

// Controller is the recording state machine. Failures pass through Error
// back to Idle and leave the mapped error visible until the next start.
type Controller struct {
	mu       sync.Mutex
	state    State
	closed   bool
	stopping bool
	gen      uint64
	lastErr  error

	stream   MediaStream
	rec      Recorder
	mimeType string
	chunks   bytes.Buffer
	elapsed  int
	held     *blob.Info

	tickStop chan struct{}
	tickDone chan struct{}

	src         MediaSource
	blobs       blob.Store
	ids         *models.IDSequence
	now         func() time.Time
	constraints Constraints
	timeslice   time.Duration
	tick        time.Duration
	onSave      func(models.JournalEntry)
	onState     func(Snapshot)
	onTick      func(int)
	log         zerolog.Logger
}

type Option func(*Controller)

func WithIDSequence(ids *models.IDSequence) Option {
	return func(c *Controller) { c.ids = ids }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithConstraints(cs Constraints) Option {
	return func(c *Controller) { c.constraints = cs }
}

// WithTimings overrides the recorder timeslice and the elapsed tick.
func WithTimings(timeslice, tick time.Duration) Option {
	return func(c *Controller) {
		if timeslice > 0 {
			c.timeslice = timeslice
		}
		if tick > 0 {
			c.tick = tick
		}
	}
}

// OnEntrySaved registers a callback run after Save hands off an entry.
func OnEntrySaved(fn func(models.JournalEntry)) Option {
	return func(c *Controller) { c.onSave = fn }
}

// OnStateChange registers a callback run after every transition.
func OnStateChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onState = fn }
}

// OnTick registers a callback run with the elapsed seconds while recording.
func OnTick(fn func(int)) Option {
	return func(c *Controller) { c.onTick = fn }
}

func NewController(src MediaSource, blobs blob.Store, opts ...Option) *Controller {
	c := &Controller{
		state:       StateIdle,
		src:         src,
		blobs:       blobs,
		now:         time.Now,
		constraints: DefaultConstraints(),
		timeslice:   DefaultTimeslice,
		tick:        DefaultTick,
		log:         logger.WithComponent("capture"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.ids == nil {
		c.ids = models.NewIDSequence(c.now)
	}
	return c
}

// StartRecording acquires the device and begins recording. Valid only
// from Idle.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return apperr.Newf(apperr.CodeInvalidState, "Recording can only start from idle")
	}
	c.gen++
	gen := c.gen
	c.state = StateInitializing
	c.lastErr = nil
	c.elapsed = 0
	c.chunks.Reset()
	c.mu.Unlock()
	c.notify()

	stream, err := c.src.GetUserMedia(ctx, c.constraints)
	if err != nil {
		return c.fail(gen, MapError(err))
	}
	if !c.adopt(gen, func() { c.stream = stream }) {
		stream.Release()
		return ErrClosed
	}

	mimeType := NegotiateMimeType(stream)
	rec, err := stream.NewRecorder(ctx, mimeType, c.timeslice, &sink{c: c, gen: gen})
	if err != nil {
		return c.fail(gen, MapError(err))
	}

	stop, done := make(chan struct{}), make(chan struct{})
	ok := c.adopt(gen, func() {
		c.rec = rec
		c.mimeType = mimeType
		c.state = StateRecording
		c.tickStop, c.tickDone = stop, done
	})
	if !ok {
		_ = rec.Stop(ctx)
		return ErrClosed
	}
	go c.runTicker(gen, stop, done)

	c.log.Info().Str("mime_type", c.blobType(mimeType)).Msg("recording started")
	c.notify()
	return nil
}

// adopt applies fn if the start attempt gen is still current.
func (c *Controller) adopt(gen uint64, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.gen != gen || c.state != StateInitializing {
		return false
	}
	fn()
	return true
}

// StopRecording flushes the recorder, assembles the recording and frees
// the device. Valid only from Recording.
func (c *Controller) StopRecording(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if c.state != StateRecording || c.stopping {
		c.mu.Unlock()
		return c.Snapshot(), apperr.Newf(apperr.CodeInvalidState, "No recording in progress")
	}
	c.stopping = true
	gen, rec := c.gen, c.rec
	c.mu.Unlock()

	c.stopTicker()
	if err := rec.Stop(ctx); err != nil {
		c.clearStopping()
		err = c.fail(gen, MapError(err))
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	if err := c.abandonedLocked(); err != nil {
		c.mu.Unlock()
		return c.Snapshot(), err
	}
	data := bytes.Clone(c.chunks.Bytes())
	c.chunks.Reset()
	blobType := c.blobType(c.mimeType)
	c.mu.Unlock()

	info, err := c.blobs.Put(ctx, blobType, bytes.NewReader(data))
	if err != nil {
		c.clearStopping()
		err = c.fail(gen, apperr.Wrap(apperr.CodeInternal, fmt.Errorf("store recording: %w", err)))
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.closed || c.gen != gen {
		c.mu.Unlock()
		c.releaseBlob(ctx, info.Ref)
		return Snapshot{}, ErrClosed
	}
	if err := c.abandonedLocked(); err != nil {
		c.mu.Unlock()
		c.releaseBlob(ctx, info.Ref)
		return c.Snapshot(), err
	}
	stream := c.stream
	c.stream, c.rec = nil, nil
	c.held = &info
	c.state = StateStopped
	c.stopping = false
	c.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
	c.log.Info().Int("elapsed_seconds", c.Snapshot().ElapsedSeconds).Int64("bytes", info.Size).Msg("recording stopped")
	c.notify()
	return c.Snapshot(), nil
}

// abandonedLocked returns the recorder failure that ended a stop in
// flight, or nil while the stop still owns the recording.
func (c *Controller) abandonedLocked() error {
	if c.state == StateRecording && c.stopping {
		return nil
	}
	if c.lastErr != nil {
		return c.lastErr
	}
	return apperr.Newf(apperr.CodeRecordingInterrupted, "Recording ended before it could be stopped")
}

func (c *Controller) clearStopping() {
	c.mu.Lock()
	c.stopping = false
	c.mu.Unlock()
}

// Save hands the recording off as an entry and returns to Idle. Valid
// only from Stopped.
func (c *Controller) Save() (models.JournalEntry, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return models.JournalEntry{}, ErrClosed
	}
	if c.state != StateStopped || c.held == nil {
		c.mu.Unlock()
		return models.JournalEntry{}, apperr.Newf(apperr.CodeInvalidState, "No recording to save")
	}
	duration := c.elapsed
	entry := models.JournalEntry{
		ID:              c.ids.Next(),
		BlobRef:         c.held.Ref,
		CreatedAt:       c.now().UTC(),
		Source:          models.SourceRecorded,
		DurationSeconds: &duration,
		MimeType:        c.held.ContentType,
	}
	c.resetLocked()
	onSave := c.onSave
	c.mu.Unlock()

	metrics.CaptureOutcome("saved")
	c.notify()
	if onSave != nil {
		onSave(entry)
	}
	return entry, nil
}

// Discard drops the recording and returns to Idle. Valid only from Stopped.
func (c *Controller) Discard(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateStopped || c.held == nil {
		c.mu.Unlock()
		return apperr.Newf(apperr.CodeInvalidState, "No recording to discard")
	}
	ref := c.held.Ref
	c.resetLocked()
	c.mu.Unlock()

	c.releaseBlob(ctx, ref)
	metrics.CaptureOutcome("discarded")
	c.notify()
	return nil
}

func (c *Controller) resetLocked() {
	c.held = nil
	c.state = StateIdle
	c.elapsed = 0
	c.mimeType = ""
	c.lastErr = nil
}

// Close releases the device, the recorder, the ticker and any unsaved
// recording. It is safe to call more than once.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++
	stream, rec, held := c.stream, c.rec, c.held
	c.stream, c.rec, c.held = nil, nil, nil
	c.chunks.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	c.stopTicker()
	if rec != nil {
		if err := rec.Stop(ctx); err != nil {
			c.log.Debug().Err(err).Msg("stop recorder on close")
		}
	}
	if stream != nil {
		stream.Release()
	}
	if held != nil {
		c.releaseBlob(ctx, held.Ref)
	}
	return nil
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
	snap := Snapshot{
		State:          c.state,
		ElapsedSeconds: c.elapsed,
		Error:          apperr.ViewOf(c.lastErr),
	}
	if c.state == StateRecording {
		snap.MimeType = c.blobType(c.mimeType)
	}
	if c.held != nil {
		snap.MimeType = c.held.ContentType
		snap.PreviewURL = c.blobs.URL(c.held.Ref)
	}
	return snap
}

// fail moves attempt gen through Error back to Idle, freeing everything it
// acquired. It returns err so callers can pass it on.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if c.closed || c.gen != gen || (c.state != StateInitializing && c.state != StateRecording) {
		c.mu.Unlock()
		return err
	}
	stream := c.stream
	c.stream, c.rec = nil, nil
	c.chunks.Reset()
	c.stopping = false
	c.state = StateError
	c.lastErr = err
	c.mu.Unlock()

	code := apperr.CodeOf(err)
	metrics.CaptureOutcome(string(code))
	c.log.Warn().Err(err).Str("code", string(code)).Msg("capture failed")
	c.notify()

	c.stopTicker()
	if stream != nil {
		stream.Release()
	}

	c.mu.Lock()
	moved := c.gen == gen && c.state == StateError
	if moved {
		c.state = StateIdle
		c.elapsed = 0
	}
	c.mu.Unlock()
	if moved {
		c.notify()
	}
	return err
}

func (c *Controller) runTicker(gen uint64, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			c.mu.Lock()
			if c.gen != gen || c.state != StateRecording || c.stopping {
				c.mu.Unlock()
				continue
			}
			c.elapsed++
			n, fn := c.elapsed, c.onTick
			c.mu.Unlock()
			if fn != nil {
				fn(n)
			}
		}
	}
}

// stopTicker must be called without c.mu held.
func (c *Controller) stopTicker() {
	c.mu.Lock()
	stop, done := c.tickStop, c.tickDone
	c.tickStop, c.tickDone = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (c *Controller) notify() {
	if c.onState != nil {
		c.onState(c.Snapshot())
	}
}

func (c *Controller) releaseBlob(ctx context.Context, ref string) {
	if err := c.blobs.Release(ctx, ref); err != nil {
		c.log.Warn().Err(err).Str("ref", ref).Msg("release recording")
	}
}

func (c *Controller) blobType(mimeType string) string {
	if mimeType == "" {
		return DefaultBlobType
	}
	return mimeType
}

// sink feeds recorder output for one start attempt back to the controller.
type sink struct {
	c   *Controller
	gen uint64
}

func (s *sink) Chunk(data []byte) {
	if len(data) == 0 {
		return
	}
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if s.c.closed || s.c.gen != s.gen {
		return
	}
	// The first chunk may race the transition out of Initializing.
	if s.c.state != StateRecording && s.c.state != StateInitializing {
		return
	}
	s.c.chunks.Write(data)
}

func (s *sink) Fail(err error) {
	var me *MediaError
	if !errors.As(err, &me) {
		err = &MediaError{Name: "RecorderError", Message: err.Error()}
	}
	_ = s.c.fail(s.gen, apperr.Wrap(apperr.CodeRecordingInterrupted, err))
}
