package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
)

// scriptedClient plays the device side: it answers each command the way a
// browser would.
type scriptedClient struct {
	mu       sync.Mutex
	src      *RemoteSource
	commands []Command
	deny     string
	types    []string
}

func (s *scriptedClient) send(cmd Command) error {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	deny, types := s.deny, s.types
	s.mu.Unlock()

	go func() {
		switch cmd.Type {
		case CmdGetUserMedia:
			if deny != "" {
				s.src.MediaError(deny, "denied")
				return
			}
			s.src.MediaReady(types)
		case CmdStartRecorder:
			s.src.Chunk([]byte("chunk-1"))
		case CmdStopRecorder:
			s.src.Chunk([]byte("chunk-2"))
			s.src.RecorderStopped()
		}
	}()
	return nil
}

func (s *scriptedClient) commandTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.commands))
	for _, c := range s.commands {
		out = append(out, c.Type)
	}
	return out
}

func newScripted(types []string, deny string) (*scriptedClient, *RemoteSource) {
	client := &scriptedClient{types: types, deny: deny}
	client.src = NewRemoteSource(client.send)
	return client, client.src
}

func TestRemoteSourceRecording(t *testing.T) {
	client, src := newScripted([]string{MimeVP8}, "")
	defer src.Close()
	blobs := blob.NewMemoryStore()
	c := NewController(src, blobs)
	defer c.Close(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, c.StartRecording(ctx))
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.chunks.Len() > 0
	}, time.Second, time.Millisecond)

	snap, err := c.StopRecording(ctx)
	require.NoError(t, err)
	assert.Equal(t, MimeVP8, snap.MimeType)

	entry, err := c.Save()
	require.NoError(t, err)
	_, info, err := blobs.Open(ctx, entry.BlobRef)
	require.NoError(t, err)
	assert.Equal(t, int64(len("chunk-1chunk-2")), info.Size)

	assert.Equal(t, []string{CmdGetUserMedia, CmdStartRecorder, CmdStopRecorder, CmdReleaseMedia}, client.commandTypes())
	assert.Equal(t, int64(1000), client.commands[1].TimesliceMS)
	assert.Equal(t, MimeVP8, client.commands[1].MimeType)
}

func TestRemoteSourceDenied(t *testing.T) {
	_, src := newScripted(nil, NotAllowedError)
	defer src.Close()
	c := NewController(src, blob.NewMemoryStore())
	defer c.Close(context.Background())

	err := c.StartRecording(context.Background())
	assert.ErrorIs(t, err, apperr.ErrPermissionDenied)
	assert.Equal(t, StateIdle, c.State())
}

func TestRemoteSourceDisconnectUnblocks(t *testing.T) {
	src := NewRemoteSource(func(Command) error { return nil })
	done := make(chan error, 1)
	go func() {
		_, err := src.GetUserMedia(context.Background(), DefaultConstraints())
		done <- err
	}()

	src.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrDisconnected)
	case <-time.After(time.Second):
		t.Fatal("GetUserMedia did not return after Close")
	}
}

func TestRemoteRecorderFailure(t *testing.T) {
	client, src := newScripted([]string{MimeVP9}, "")
	defer src.Close()
	c := NewController(src, blob.NewMemoryStore())
	defer c.Close(context.Background())

	require.NoError(t, c.StartRecording(context.Background()))
	src.RecorderError("UnknownError", "encoder stalled")

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, apperr.CodeRecordingInterrupted, snap.Error.Code)
	assert.Contains(t, client.commandTypes(), CmdReleaseMedia)
}
