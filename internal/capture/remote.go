package capture

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"
)

// ErrDisconnected is returned when the remote device side goes away.
var ErrDisconnected = errors.New("capture: media client disconnected")

// Command is an instruction sent to the remote device side.
type Command struct {
	Type        string       `json:"type"`
	Constraints *Constraints `json:"constraints,omitempty"`
	MimeType    string       `json:"mime_type,omitempty"`
	TimesliceMS int64        `json:"timeslice_ms,omitempty"`
}

// Command types.
const (
	CmdGetUserMedia  = "get_user_media"
	CmdStartRecorder = "start_recorder"
	CmdStopRecorder  = "stop_recorder"
	CmdReleaseMedia  = "release_media"
)

type mediaReply struct {
	types []string
	err   error
}

// RemoteSource is a MediaSource whose device lives on the other end of a
// message transport. The transport sends Commands through send and feeds
// replies back with the Media*, Chunk and Recorder* methods.
type RemoteSource struct {
	send func(Command) error

	mu      sync.Mutex
	pending chan mediaReply
	stream  *remoteStream
	rec     *remoteRecorder
	done    chan struct{}
	closed  bool
}

func NewRemoteSource(send func(Command) error) *RemoteSource {
	return &RemoteSource{send: send, done: make(chan struct{})}
}

func (s *RemoteSource) GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error) {
	reply := make(chan mediaReply, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	s.pending = reply
	s.mu.Unlock()

	if err := s.send(Command{Type: CmdGetUserMedia, Constraints: &c}); err != nil {
		s.clearPending(reply)
		return nil, err
	}

	select {
	case r := <-reply:
		if r.err != nil {
			return nil, r.err
		}
		st := &remoteStream{src: s, types: r.types}
		s.mu.Lock()
		s.stream = st
		s.mu.Unlock()
		return st, nil
	case <-ctx.Done():
		s.clearPending(reply)
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrDisconnected
	}
}

func (s *RemoteSource) clearPending(reply chan mediaReply) {
	s.mu.Lock()
	if s.pending == reply {
		s.pending = nil
	}
	s.mu.Unlock()
}

func (s *RemoteSource) resolve(r mediaReply) {
	s.mu.Lock()
	reply := s.pending
	s.pending = nil
	s.mu.Unlock()
	if reply != nil {
		reply <- r
	}
}

// MediaReady reports a granted stream and the recorder formats it supports.
func (s *RemoteSource) MediaReady(supportedTypes []string) {
	s.resolve(mediaReply{types: supportedTypes})
}

// MediaError reports a failed device request.
func (s *RemoteSource) MediaError(name, message string) {
	s.resolve(mediaReply{err: &MediaError{Name: name, Message: message}})
}

// Chunk delivers one encoded chunk from the active recorder.
func (s *RemoteSource) Chunk(data []byte) {
	s.mu.Lock()
	rec := s.rec
	s.mu.Unlock()
	if rec != nil {
		rec.sink.Chunk(data)
	}
}

// RecorderStopped reports that the recorder flushed its last chunk.
func (s *RemoteSource) RecorderStopped() {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec != nil {
		rec.finish()
	}
}

// RecorderError reports a failure of the active recorder.
func (s *RemoteSource) RecorderError(name, message string) {
	s.mu.Lock()
	rec := s.rec
	s.rec = nil
	s.mu.Unlock()
	if rec != nil {
		rec.finish()
		rec.sink.Fail(&MediaError{Name: name, Message: message})
	}
}

// Close unblocks every pending wait. The transport calls it when the
// connection ends.
func (s *RemoteSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

type remoteStream struct {
	src   *RemoteSource
	types []string
	once  sync.Once
}

func (st *remoteStream) IsTypeSupported(mimeType string) bool {
	return slices.Contains(st.types, mimeType)
}

func (st *remoteStream) NewRecorder(_ context.Context, mimeType string, timeslice time.Duration, sink Sink) (Recorder, error) {
	rec := &remoteRecorder{src: st.src, sink: sink, stopped: make(chan struct{})}
	st.src.mu.Lock()
	st.src.rec = rec
	st.src.mu.Unlock()

	err := st.src.send(Command{Type: CmdStartRecorder, MimeType: mimeType, TimesliceMS: timeslice.Milliseconds()})
	if err != nil {
		st.src.mu.Lock()
		if st.src.rec == rec {
			st.src.rec = nil
		}
		st.src.mu.Unlock()
		return nil, err
	}
	return rec, nil
}

func (st *remoteStream) Release() {
	st.once.Do(func() {
		st.src.mu.Lock()
		if st.src.stream == st {
			st.src.stream = nil
		}
		closed := st.src.closed
		st.src.mu.Unlock()
		if !closed {
			_ = st.src.send(Command{Type: CmdReleaseMedia})
		}
	})
}

type remoteRecorder struct {
	src     *RemoteSource
	sink    Sink
	stopped chan struct{}
	once    sync.Once
}

func (r *remoteRecorder) finish() {
	r.once.Do(func() { close(r.stopped) })
}

func (r *remoteRecorder) Stop(ctx context.Context) error {
	select {
	case <-r.stopped:
		return nil
	default:
	}
	if err := r.src.send(Command{Type: CmdStopRecorder}); err != nil {
		return err
	}
	select {
	case <-r.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.src.done:
		return ErrDisconnected
	}
}
