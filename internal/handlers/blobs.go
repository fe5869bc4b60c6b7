package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
)

// BlobsHandler streams stored videos for playback. Refs are random and
// only handed to their owner, so knowing a ref is enough to play it.
type BlobsHandler struct {
	store blob.Store
	log   zerolog.Logger
}

func NewBlobsHandler(store blob.Store) *BlobsHandler {
	return &BlobsHandler{store: store, log: logger.WithComponent("blobs")}
}

func (h *BlobsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/blobs/*", h.Serve)
}

// Serve writes the blob, honouring Range requests when the store gives a
// seekable reader.
func (h *BlobsHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")
	rc, info, err := h.store.Open(r.Context(), ref)
	switch {
	case errors.Is(err, blob.ErrNotFound), errors.Is(err, blob.ErrReleased):
		writeError(w, apperr.Newf(apperr.CodeNotFound, "Video not found"))
		return
	case err != nil:
		h.log.Error().Err(err).Str("ref", ref).Msg("open blob")
		writeError(w, apperr.Newf(apperr.CodeInternal, "Video is not available right now"))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", info.CreatedAt, rs)
		return
	}
	if info.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}
