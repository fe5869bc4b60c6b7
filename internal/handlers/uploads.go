package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/upload"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

// multipartMemory is how much of a multipart upload is buffered in memory
// before spilling to temporary files.
const multipartMemory = 8 << 20

type UploadResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Code    string          `json:"code,omitempty"`
	Upload  upload.Snapshot `json:"upload"`
}

// UploadsHandler drives the signed-in user's upload controller.
type UploadsHandler struct {
	blobs   blob.Store
	maxSize int64
}

func NewUploadsHandler(blobs blob.Store, maxSize int64) *UploadsHandler {
	if maxSize <= 0 {
		maxSize = upload.MaxFileSize
	}
	return &UploadsHandler{blobs: blobs, maxSize: maxSize}
}

// RegisterRoutes mounts the read and save routes. The file-selection
// routes are mounted through RegisterSelectRoutes so they can be rate
// limited separately.
func (h *UploadsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/uploads", h.Status)
	r.Post("/api/uploads/save", h.Save)
	r.Delete("/api/uploads", h.Reset)
}

func (h *UploadsHandler) RegisterSelectRoutes(r chi.Router) {
	r.Post("/api/uploads", h.SelectMultipart)
	r.Put("/api/uploads", h.SelectRaw)
}

func (h *UploadsHandler) Status(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Upload: sc.Workspace.Uploads.Snapshot()})
}

// SelectMultipart takes the "file" field of a multipart form, the way a
// file picker or drop zone submits it.
func (h *UploadsHandler) SelectMultipart(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	// The form may carry a little more than the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize+multipartMemory)

	var f upload.File
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			snap, err := sc.Workspace.Uploads.Reject(r.Context(),
				apperr.Newf(apperr.CodeTooLarge, "File size exceeds %s limit", utils.FormatFileSize(h.maxSize)))
			h.respond(w, snap, err)
			return
		}
		writeError(w, apperr.Newf(apperr.CodeValidation, "Invalid upload form"))
		return
	}
	defer r.MultipartForm.RemoveAll()
	if files := r.MultipartForm.File["file"]; len(files) > 0 {
		f = upload.FromFileHeader(files[0])
	}

	snap, err := sc.Workspace.Uploads.SelectFile(r.Context(), f)
	h.respond(w, snap, err)
}

// SelectRaw takes the request body as the file. The name comes from the
// X-File-Name header (URL-escaped) and the size from Content-Length.
func (h *UploadsHandler) SelectRaw(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var f upload.File
	if r.ContentLength != 0 || r.Header.Get("X-File-Name") != "" {
		name := r.Header.Get("X-File-Name")
		if unescaped, err := url.PathUnescape(name); err == nil {
			name = unescaped
		}
		if name == "" {
			name = "upload"
		}
		size := r.ContentLength
		if size < 0 {
			writeError(w, apperr.Newf(apperr.CodeValidation, "Content-Length is required"))
			return
		}
		contentType := strings.TrimSpace(r.Header.Get("Content-Type"))
		f = upload.FromStream(name, contentType, size, http.MaxBytesReader(w, r.Body, h.maxSize))
	}

	snap, err := sc.Workspace.Uploads.SelectFile(r.Context(), f)
	h.respond(w, snap, err)
}

func (h *UploadsHandler) respond(w http.ResponseWriter, snap upload.Snapshot, err error) {
	if err != nil {
		code := apperr.CodeOf(err)
		writeJSON(w, apperr.HTTPStatus(code), UploadResponse{
			Success: false,
			Message: apperr.MessageOf(err),
			Code:    string(code),
			Upload:  snap,
		})
		return
	}
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Message: "File ready to save", Upload: snap})
}

// Save stores the ready file as a journal entry.
func (h *UploadsHandler) Save(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := sc.Workspace.Uploads.Save()
	if err != nil {
		writeError(w, err)
		return
	}
	saved, err := sc.Workspace.SaveEntry(r.Context(), entry)
	if err != nil && !errors.Is(err, apperr.ErrStorageWriteFailed) {
		writeError(w, err)
		return
	}
	v := EntryView{JournalEntry: saved, VideoURL: h.blobs.URL(saved.BlobRef)}
	writeJSON(w, http.StatusCreated, EntryResponse{
		Success: true,
		Message: "Video saved to your journal",
		Entry:   &v,
		Warning: apperr.ViewOf(err),
	})
}

// Reset drops the selected file.
func (h *UploadsHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	sc.Workspace.Uploads.Reset(r.Context())
	writeJSON(w, http.StatusOK, UploadResponse{Success: true, Message: "Upload cleared", Upload: sc.Workspace.Uploads.Snapshot()})
}
