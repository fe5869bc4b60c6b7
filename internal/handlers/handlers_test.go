package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/middleware"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
	"github.com/AnshRaj112/daily-journal-backend/internal/summary"
	"github.com/AnshRaj112/daily-journal-backend/internal/upload"
)

type testEnv struct {
	srv        *httptest.Server
	blobs      *blob.MemoryStore
	hub        *notify.Hub
	workspaces *session.Manager
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	blobs := blob.NewMemoryStore()
	hub := notify.NewHub()
	workspaces := session.NewManager(entries.NewMemoryPersister(), blobs,
		session.WithPublisher(hub),
		session.WithMaxUpload(maxUpload),
	)
	authSvc := auth.NewService(auth.NewMemoryUsers(), auth.NewMemorySessions())

	templates, err := summary.NewTemplateSet("")
	require.NoError(t, err)
	gen := summary.NewMockGenerator(templates,
		summary.WithSleep(func(context.Context, time.Duration) error { return nil }),
		summary.WithRand(func() float64 { return 0 }),
	)
	summaries := summary.NewService(gen, summary.WithPublisher(hub))

	r := chi.NewRouter()
	authHandler := NewAuthHandler(authSvc, workspaces)
	authHandler.RegisterPublicRoutes(r)
	entriesHandler := NewEntriesHandler(blobs, summaries)
	uploadsHandler := NewUploadsHandler(blobs, maxUpload)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(authSvc, workspaces))
		authHandler.RegisterRoutes(r)
		entriesHandler.RegisterRoutes(r)
		entriesHandler.RegisterSummaryRoutes(r)
		uploadsHandler.RegisterRoutes(r)
		uploadsHandler.RegisterSelectRoutes(r)
		NewBlobsHandler(blobs).RegisterRoutes(r)
		NewCaptureHandler(blobs, nil).RegisterRoutes(r)
		NewEventsHandler(hub, nil).RegisterRoutes(r)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = summaries.Shutdown(ctx)
		workspaces.CloseAll(ctx)
	})
	return &testEnv{srv: srv, blobs: blobs, hub: hub, workspaces: workspaces}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, in any) *http.Response {
	t.Helper()
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return e.do(t, method, path, token, body, http.Header{"Content-Type": {"application/json"}})
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// register signs up a fresh account and returns its token and user id.
func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()
	resp := e.doJSON(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Email: email, Password: "secret123", ConfirmPassword: "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[AuthResponse](t, resp)
	require.NotEmpty(t, out.Token)
	require.NotNil(t, out.User)
	return out.Token, out.User.ID.String()
}

func multipartBody(t *testing.T, name, contentType string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+name+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

// uploadEntry selects and saves a small video and returns the saved entry.
func (e *testEnv) uploadEntry(t *testing.T, token string) EntryView {
	t.Helper()
	body, ct := multipartBody(t, "morning.mp4", "video/mp4", []byte("video-bytes"))
	resp := e.do(t, http.MethodPost, "/api/uploads", token, body, http.Header{"Content-Type": {ct}})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/uploads/save", token, nil, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	out := decode[EntryResponse](t, resp)
	require.NotNil(t, out.Entry)
	return *out.Entry
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "Ada@Example.com")

	resp := env.do(t, http.MethodGet, "/api/auth/me", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	me := decode[AuthResponse](t, resp)
	assert.Equal(t, "ada@example.com", me.User.Email)

	resp = env.doJSON(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Email: "ada@example.com", Password: "secret123", ConfirmPassword: "secret123",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.doJSON(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "ada@example.com", Password: "wrong-one"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIALS", decode[ErrorResponse](t, resp).Code)

	resp = env.doJSON(t, http.MethodPost, "/api/auth/login", "", auth.LoginRequest{Email: "ada@example.com", Password: "secret123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	second := decode[AuthResponse](t, resp).Token
	require.NotEmpty(t, second)

	resp = env.do(t, http.MethodPost, "/api/auth/logout", second, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/auth/me", second, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/auth/me", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t, 0)

	resp := env.doJSON(t, http.MethodPost, "/api/auth/register", "", auth.RegisterRequest{
		Email: "bob@example.com", Password: "secret123", ConfirmPassword: "different",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	out := decode[ErrorResponse](t, resp)
	assert.Equal(t, "VALIDATION_FAILED", out.Code)
	assert.Equal(t, "Passwords do not match", out.Message)

	resp = env.do(t, http.MethodPost, "/api/auth/register", "", strings.NewReader("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadSaveAndPlayback(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "cam@example.com")

	entry := env.uploadEntry(t, token)
	assert.Equal(t, models.SourceUploaded, entry.Source)
	require.NotNil(t, entry.File)
	assert.Equal(t, "morning.mp4", entry.File.Name)
	assert.Equal(t, int64(len("video-bytes")), entry.File.ByteSize)
	assert.True(t, strings.HasPrefix(entry.VideoURL, "/api/blobs/"), entry.VideoURL)

	resp := env.do(t, http.MethodGet, "/api/uploads", token, nil, nil)
	assert.Equal(t, upload.StateIdle, decode[UploadResponse](t, resp).Upload.State)

	resp = env.do(t, http.MethodGet, "/api/entries", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[EntriesResponse](t, resp)
	assert.Equal(t, 1, list.Total)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, entry.ID, list.Entries[0].ID)

	resp = env.do(t, http.MethodGet, entry.VideoURL, token, nil, http.Header{"Range": {"bytes=0-4"}})
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, "video/mp4", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "video", string(data))
}

func TestDeleteEntryReleasesVideo(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "del@example.com")
	entry := env.uploadEntry(t, token)
	path := "/api/entries/" + strconv.FormatInt(entry.ID, 10)

	resp := env.do(t, http.MethodGet, path, token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, path, token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Nil(t, decode[EntryResponse](t, resp).Warning)

	resp = env.do(t, http.MethodGet, path, token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, entry.VideoURL, token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Deleting again is not an error.
	resp = env.do(t, http.MethodDelete, path, token, nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEntriesAreScopedToTheirOwner(t *testing.T) {
	env := newTestEnv(t, 0)
	alice, _ := env.register(t, "alice@example.com")
	bob, _ := env.register(t, "bob@example.com")
	entry := env.uploadEntry(t, alice)

	resp := env.do(t, http.MethodGet, "/api/entries/"+strconv.FormatInt(entry.ID, 10), bob, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/entries", bob, nil, nil)
	assert.Equal(t, 0, decode[EntriesResponse](t, resp).Total)
}

func TestListPaging(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "pages@example.com")
	for i := 0; i < 3; i++ {
		env.uploadEntry(t, token)
	}

	resp := env.do(t, http.MethodGet, "/api/entries?offset=1&limit=1", token, nil, nil)
	out := decode[EntriesResponse](t, resp)
	assert.Equal(t, 3, out.Total)
	assert.Len(t, out.Entries, 1)

	resp = env.do(t, http.MethodGet, "/api/entries?offset=10", token, nil, nil)
	out = decode[EntriesResponse](t, resp)
	assert.Equal(t, 3, out.Total)
	assert.Empty(t, out.Entries)
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t, 16)
	token, _ := env.register(t, "rej@example.com")

	tests := []struct {
		name   string
		header http.Header
		body   string
		status int
		code   string
	}{
		{
			name:   "wrong type",
			header: http.Header{"Content-Type": {"text/plain"}, "X-File-Name": {"notes.txt"}},
			body:   "hello",
			status: http.StatusBadRequest,
			code:   "INVALID_TYPE",
		},
		{
			name:   "too large",
			header: http.Header{"Content-Type": {"video/webm"}, "X-File-Name": {"long.webm"}},
			body:   strings.Repeat("x", 32),
			status: http.StatusRequestEntityTooLarge,
			code:   "TOO_LARGE",
		},
		{
			name:   "empty",
			header: http.Header{"X-File-Name": {"blank.mov"}},
			body:   "",
			status: http.StatusBadRequest,
			code:   "EMPTY",
		},
		{
			name:   "no file",
			body:   "",
			status: http.StatusBadRequest,
			code:   "NO_FILE",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPut, "/api/uploads", token, strings.NewReader(tt.body), tt.header)
			require.Equal(t, tt.status, resp.StatusCode)
			out := decode[UploadResponse](t, resp)
			assert.False(t, out.Success)
			assert.Equal(t, tt.code, out.Code)
			assert.Equal(t, upload.StateError, out.Upload.State)
		})
	}

	resp := env.do(t, http.MethodPost, "/api/uploads/save", token, nil, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestMultipartUploadRejections(t *testing.T) {
	env := newTestEnv(t, 16)
	token, _ := env.register(t, "picker@example.com")

	tests := []struct {
		name   string
		file   string
		ct     string
		data   []byte
		status int
		code   string
	}{
		{"wrong type", "notes.txt", "text/plain", []byte("hello"), http.StatusBadRequest, "INVALID_TYPE"},
		{"too large", "long.webm", "video/webm", bytes.Repeat([]byte("x"), 32), http.StatusRequestEntityTooLarge, "TOO_LARGE"},
		{"form over the body limit", "huge.webm", "video/webm", bytes.Repeat([]byte("x"), 9<<20), http.StatusRequestEntityTooLarge, "TOO_LARGE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Start from a held file so the rejection has something to release.
			body, ct := multipartBody(t, "ok.mp4", "video/mp4", []byte("video"))
			resp := env.do(t, http.MethodPost, "/api/uploads", token, body, http.Header{"Content-Type": {ct}})
			require.Equal(t, http.StatusOK, resp.StatusCode)
			require.Equal(t, 1, env.blobs.Len())

			body, ct = multipartBody(t, tt.file, tt.ct, tt.data)
			resp = env.do(t, http.MethodPost, "/api/uploads", token, body, http.Header{"Content-Type": {ct}})
			require.Equal(t, tt.status, resp.StatusCode)
			out := decode[UploadResponse](t, resp)
			assert.Equal(t, tt.code, out.Code)
			assert.Equal(t, upload.StateError, out.Upload.State)
			assert.Nil(t, out.Upload.File)
			assert.Equal(t, 0, env.blobs.Len())

			resp = env.do(t, http.MethodGet, "/api/uploads", token, nil, nil)
			assert.Equal(t, upload.StateError, decode[UploadResponse](t, resp).Upload.State)
		})
	}
}

func TestRawUploadDecodesFileName(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "raw@example.com")

	resp := env.do(t, http.MethodPut, "/api/uploads", token, strings.NewReader("webm"), http.Header{
		"X-File-Name": {"my%20day.webm"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[UploadResponse](t, resp)
	require.NotNil(t, out.Upload.File)
	assert.Equal(t, "my day.webm", out.Upload.File.Name)
	assert.Equal(t, "video/webm", out.Upload.File.ContentType)

	resp = env.do(t, http.MethodDelete, "/api/uploads", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, upload.StateIdle, decode[UploadResponse](t, resp).Upload.State)
	assert.Equal(t, 0, env.blobs.Len())
}

func TestSummaryEndpoints(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "sum@example.com")
	entry := env.uploadEntry(t, token)
	base := "/api/entries/" + strconv.FormatInt(entry.ID, 10)

	resp := env.do(t, http.MethodGet, base+"/summary", token, nil, nil)
	assert.Equal(t, summary.JobNone, decode[SummaryResponse](t, resp).Status.State)

	resp = env.do(t, http.MethodGet, base+"/summary.txt", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, base+"/summary?wait=true", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[EntryResponse](t, resp)
	require.NotNil(t, out.Entry)
	require.NotNil(t, out.Entry.Summary)
	assert.Equal(t, "mock", out.Entry.Summary.Generator)

	resp = env.do(t, http.MethodGet, base+"/summary", token, nil, nil)
	assert.Equal(t, summary.JobReady, decode[SummaryResponse](t, resp).Status.State)

	resp = env.do(t, http.MethodGet, base+"/summary.txt", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
	text, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(text), string(out.Entry.Summary.Mood))

	resp = env.do(t, http.MethodPost, base+"/summary", token, nil, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	st := decode[SummaryResponse](t, resp).Status
	assert.Contains(t, []summary.JobState{summary.JobPending, summary.JobReady}, st.State)

	require.Eventually(t, func() bool {
		resp := env.do(t, http.MethodGet, base+"/summary", token, nil, nil)
		return decode[SummaryResponse](t, resp).Status.State == summary.JobReady
	}, 5*time.Second, 20*time.Millisecond)

	resp = env.do(t, http.MethodPost, "/api/entries/999/summary", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/entries/abc/summary", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "stats@example.com")
	env.uploadEntry(t, token)
	env.uploadEntry(t, token)

	resp := env.do(t, http.MethodGet, "/api/stats", token, nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[StatsResponse](t, resp).Stats
	assert.Equal(t, 2, stats.TotalEntries)
	assert.Equal(t, 2, stats.ThisWeek)
}

func TestBlobNotFound(t *testing.T) {
	env := newTestEnv(t, 0)
	token, _ := env.register(t, "blob@example.com")

	resp := env.do(t, http.MethodGet, "/api/blobs/nope", token, nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/api/blobs/nope", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
