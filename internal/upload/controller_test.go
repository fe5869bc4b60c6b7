package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// sizedReader yields n zero bytes without allocating them up front.
type sizedReader struct{ left int64 }

func (r *sizedReader) Read(p []byte) (int, error) {
	if r.left <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.left {
		p = p[:r.left]
	}
	clear(p)
	r.left -= int64(len(p))
	return len(p), nil
}

func streamOf(name, ct string, n int64) File {
	return FromStream(name, ct, n, &sizedReader{left: n})
}

func fileHeader(t *testing.T, name, ct string, data []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	if ct != "" {
		h.Set("Content-Type", ct)
	}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

func TestSelectFileRejections(t *testing.T) {
	cases := []struct {
		name string
		file File
		want apperr.Code
	}{
		{"missing", nil, apperr.CodeNoFile},
		{"pdf", streamOf("notes.pdf", "application/pdf", 2048), apperr.CodeInvalidType},
		{"empty", streamOf("empty.mp4", "video/mp4", 0), apperr.CodeEmpty},
		{"too large", streamOf("long.mp4", "video/mp4", 150*1024*1024), apperr.CodeTooLarge},
		{"type checked before size", streamOf("huge.pdf", "application/pdf", 150*1024*1024), apperr.CodeInvalidType},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blobs := blob.NewMemoryStore()
			c := NewController(blobs)

			snap, err := c.SelectFile(context.Background(), tc.file)
			require.Error(t, err)
			assert.Equal(t, tc.want, apperr.CodeOf(err))
			assert.Equal(t, StateError, snap.State)
			require.NotNil(t, snap.Error)
			assert.Equal(t, tc.want, snap.Error.Code)
			assert.Equal(t, 0, blobs.Len())
		})
	}
}

func TestTooLargeMessageNamesLimit(t *testing.T) {
	c := NewController(blob.NewMemoryStore())
	_, err := c.SelectFile(context.Background(), streamOf("long.mp4", "video/mp4", MaxFileSize+1))
	assert.Equal(t, "File size exceeds 100 MB limit", apperr.MessageOf(err))
}

func TestSelectFileReady(t *testing.T) {
	blobs := blob.NewMemoryStore()
	c := NewController(blobs)

	const size = 10 * 1024 * 1024
	snap, err := c.SelectFile(context.Background(), streamOf("morning.mp4", "video/mp4", size))
	require.NoError(t, err)

	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, &models.FileMetadata{Name: "morning.mp4", ByteSize: size, ContentType: "video/mp4"}, snap.File)
	assert.True(t, strings.HasPrefix(snap.PreviewURL, "/api/blobs/blob:"))
	assert.Nil(t, snap.Error)
	assert.Equal(t, 1, blobs.Len())
}

func TestPickerAndDropPathsAgree(t *testing.T) {
	data := bytes.Repeat([]byte{0x1a, 0x45, 0xdf, 0xa3}, 1024)

	picker := NewController(blob.NewMemoryStore())
	fromPicker, err := picker.SelectFile(context.Background(), FromFileHeader(fileHeader(t, "evening.webm", "video/webm", data)))
	require.NoError(t, err)

	drop := NewController(blob.NewMemoryStore())
	fromDrop, err := drop.SelectFile(context.Background(), FromStream("evening.webm", "video/webm", int64(len(data)), bytes.NewReader(data)))
	require.NoError(t, err)

	assert.Equal(t, fromPicker.State, fromDrop.State)
	assert.Equal(t, fromPicker.File, fromDrop.File)

	_, err = picker.SelectFile(context.Background(), FromFileHeader(fileHeader(t, "doc.pdf", "application/pdf", data)))
	_, err2 := drop.SelectFile(context.Background(), FromStream("doc.pdf", "application/pdf", int64(len(data)), bytes.NewReader(data)))
	assert.Equal(t, apperr.CodeOf(err), apperr.CodeOf(err2))
}

func TestContentTypeGuessedFromExtension(t *testing.T) {
	c := NewController(blob.NewMemoryStore())
	snap, err := c.SelectFile(context.Background(), FromFileHeader(fileHeader(t, "trip.MOV", "", []byte("moov"))))
	require.NoError(t, err)
	assert.Equal(t, "video/quicktime", snap.File.ContentType)
}

func TestSaveHandsOffBlob(t *testing.T) {
	blobs := blob.NewMemoryStore()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var saved []models.JournalEntry
	c := NewController(blobs,
		WithClock(func() time.Time { return at }),
		OnEntrySaved(func(e models.JournalEntry) { saved = append(saved, e) }),
	)

	_, err := c.SelectFile(context.Background(), streamOf("a.webm", "video/webm", 64))
	require.NoError(t, err)

	entry, err := c.Save()
	require.NoError(t, err)
	assert.Equal(t, models.SourceUploaded, entry.Source)
	assert.Equal(t, at.UnixMilli(), entry.ID)
	assert.Equal(t, at, entry.CreatedAt)
	require.NotNil(t, entry.File)
	assert.Equal(t, int64(64), entry.File.ByteSize)
	assert.Nil(t, entry.DurationSeconds)
	require.Len(t, saved, 1)
	assert.Equal(t, entry, saved[0])

	assert.Equal(t, StateIdle, c.State())
	c.Reset(context.Background())
	assert.Equal(t, 0, blobs.Releases(entry.BlobRef), "a saved blob belongs to the entry")
	assert.Equal(t, 1, blobs.Len())
}

func TestSaveRequiresReady(t *testing.T) {
	c := NewController(blob.NewMemoryStore())
	_, err := c.Save()
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestReselectAndResetReleaseHeldBlob(t *testing.T) {
	blobs := blob.NewMemoryStore()
	c := NewController(blobs)
	ctx := context.Background()

	first, err := c.SelectFile(ctx, streamOf("a.mp4", "video/mp4", 10))
	require.NoError(t, err)
	firstRef := strings.TrimPrefix(first.PreviewURL, "/api/blobs/")

	_, err = c.SelectFile(ctx, streamOf("b.mp4", "video/mp4", 10))
	require.NoError(t, err)
	assert.Equal(t, 1, blobs.Releases(firstRef))
	assert.Equal(t, 1, blobs.Len())

	c.Reset(ctx)
	assert.Equal(t, StateIdle, c.State())
	assert.Equal(t, 0, blobs.Len())

	c.Reset(ctx)
	assert.Equal(t, 1, blobs.Releases(firstRef))
}

// gatedFile blocks its reader until release is closed.
type gatedFile struct {
	opened  chan struct{}
	release chan struct{}
}

func (f *gatedFile) Name() string        { return "slow.mp4" }
func (f *gatedFile) Size() int64         { return 4 }
func (f *gatedFile) ContentType() string { return "video/mp4" }
func (f *gatedFile) Open() (io.ReadCloser, error) {
	close(f.opened)
	<-f.release
	return io.NopCloser(strings.NewReader("moov")), nil
}

func TestResetWhileProcessingDropsResult(t *testing.T) {
	blobs := blob.NewMemoryStore()
	c := NewController(blobs)
	ctx := context.Background()
	f := &gatedFile{opened: make(chan struct{}), release: make(chan struct{})}

	errc := make(chan error, 1)
	go func() {
		_, err := c.SelectFile(ctx, f)
		errc <- err
	}()
	<-f.opened
	require.Equal(t, StateProcessing, c.State())

	c.Reset(ctx)
	assert.Equal(t, StateIdle, c.State())
	close(f.release)

	err := <-errc
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
	assert.Equal(t, StateIdle, c.State())
	assert.Nil(t, c.Snapshot().File)
	assert.Equal(t, 0, blobs.Len())
}

func TestRejectReleasesHeldFile(t *testing.T) {
	blobs := blob.NewMemoryStore()
	c := NewController(blobs)
	ctx := context.Background()

	_, err := c.SelectFile(ctx, streamOf("a.mp4", "video/mp4", 10))
	require.NoError(t, err)
	require.Equal(t, 1, blobs.Len())

	snap, err := c.Reject(ctx, apperr.New(apperr.CodeTooLarge))
	assert.Equal(t, apperr.CodeTooLarge, apperr.CodeOf(err))
	assert.Equal(t, StateError, snap.State)
	require.NotNil(t, snap.Error)
	assert.Equal(t, apperr.CodeTooLarge, snap.Error.Code)
	assert.Nil(t, snap.File)
	assert.Equal(t, 0, blobs.Len())
}
