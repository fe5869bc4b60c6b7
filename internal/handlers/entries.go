package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/summary"
)

// EntryView is an entry as the dashboard shows it.
type EntryView struct {
	models.JournalEntry
	VideoURL string `json:"video_url"`
}

type EntriesResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Entries []EntryView `json:"entries"`
	Total   int         `json:"total"`
}

type EntryResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Entry   *EntryView `json:"entry,omitempty"`
	// Warning is set when the change applied but could not be persisted.
	Warning *apperr.View `json:"warning,omitempty"`
}

type StatsResponse struct {
	Success bool         `json:"success"`
	Stats   models.Stats `json:"stats"`
}

type SummaryResponse struct {
	Success bool           `json:"success"`
	Message string         `json:"message,omitempty"`
	Status  summary.Status `json:"status"`
}

// EntriesHandler serves the signed-in user's journal.
type EntriesHandler struct {
	blobs     blob.Store
	summaries *summary.Service
	now       func() time.Time
}

func NewEntriesHandler(blobs blob.Store, summaries *summary.Service) *EntriesHandler {
	return &EntriesHandler{blobs: blobs, summaries: summaries, now: time.Now}
}

func (h *EntriesHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/entries", h.List)
	r.Get("/api/entries/{id}", h.Get)
	r.Delete("/api/entries/{id}", h.Delete)
	r.Get("/api/stats", h.Stats)
	r.Get("/api/entries/{id}/summary", h.SummaryStatus)
	r.Get("/api/entries/{id}/summary.txt", h.ExportSummary)
}

// RegisterSummaryRoutes mounts the generation endpoint so callers can wrap
// it in its own limiter.
func (h *EntriesHandler) RegisterSummaryRoutes(r chi.Router) {
	r.Post("/api/entries/{id}/summary", h.RequestSummary)
}

func (h *EntriesHandler) view(e models.JournalEntry) EntryView {
	return EntryView{JournalEntry: e, VideoURL: h.blobs.URL(e.BlobRef)}
}

// List returns entries newest first. limit and offset page the result.
func (h *EntriesHandler) List(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	all := sc.Workspace.Entries.List()

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if offset < 0 || offset > len(all) {
		offset = len(all)
	}
	page := all[offset:]
	if limit > 0 && limit < len(page) {
		page = page[:limit]
	}

	views := make([]EntryView, 0, len(page))
	for _, e := range page {
		views = append(views, h.view(e))
	}
	writeJSON(w, http.StatusOK, EntriesResponse{Success: true, Entries: views, Total: len(all)})
}

func (h *EntriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, ok := sc.Workspace.Entries.Get(id)
	if !ok {
		writeError(w, apperr.Newf(apperr.CodeNotFound, "Entry not found"))
		return
	}
	v := h.view(e)
	writeJSON(w, http.StatusOK, EntryResponse{Success: true, Entry: &v})
}

// Delete removes an entry. Deleting an unknown id succeeds.
func (h *EntriesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := EntryResponse{Success: true, Message: "Entry deleted"}
	if err := sc.Workspace.DeleteEntry(r.Context(), id); err != nil {
		if !errors.Is(err, apperr.ErrStorageWriteFailed) {
			writeError(w, err)
			return
		}
		resp.Warning = apperr.ViewOf(err)
	}
	h.summaries.Forget(sc.UserID(), id)
	writeJSON(w, http.StatusOK, resp)
}

func (h *EntriesHandler) Stats(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{Success: true, Stats: sc.Workspace.Entries.Stats()})
}

// RequestSummary starts generation and answers 202. With ?wait=true it
// generates synchronously and returns the updated entry.
func (h *EntriesHandler) RequestSummary(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	store := sc.Workspace.Entries

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		updated, err := h.summaries.Generate(r.Context(), sc.UserID(), store, id)
		if err != nil && !errors.Is(err, apperr.ErrStorageWriteFailed) {
			writeError(w, err)
			return
		}
		v := h.view(updated)
		writeJSON(w, http.StatusOK, EntryResponse{Success: true, Message: "Summary ready", Entry: &v, Warning: apperr.ViewOf(err)})
		return
	}

	if err := h.summaries.Request(r.Context(), sc.UserID(), store, id); err != nil {
		writeError(w, err)
		return
	}
	st, err := h.summaries.Status(sc.UserID(), store, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, SummaryResponse{Success: true, Message: "Generating summary", Status: st})
}

func (h *EntriesHandler) SummaryStatus(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.summaries.Status(sc.UserID(), sc.Workspace.Entries, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SummaryResponse{Success: true, Status: st})
}

// ExportSummary downloads the summary as a text file.
func (h *EntriesHandler) ExportSummary(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := entryID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	e, ok := sc.Workspace.Entries.Get(id)
	if !ok {
		writeError(w, apperr.Newf(apperr.CodeNotFound, "Entry not found"))
		return
	}
	if e.Summary == nil {
		writeError(w, apperr.Newf(apperr.CodeNotFound, "This entry has no summary yet"))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+summary.ExportFilename(e)+`"`)
	_, _ = w.Write([]byte(summary.FormatText(e, *e.Summary, h.now())))
}
