package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 1 << 20

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders err with the status its code maps to.
func writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	writeJSON(w, apperr.HTTPStatus(code), ErrorResponse{
		Success:   false,
		Message:   apperr.MessageOf(err),
		Code:      string(code),
		Retryable: apperr.Retryable(code),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return nil
	}
	return apperr.Newf(apperr.CodeValidation, "Invalid request body")
}

// sessionFrom returns the session stored by the auth middleware. Handlers
// are only mounted behind it, so a missing session is an internal error.
func sessionFrom(r *http.Request) (*session.Context, error) {
	sc, ok := session.FromContext(r.Context())
	if !ok {
		return nil, apperr.New(apperr.CodeUnauthorized)
	}
	return sc, nil
}

func entryID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Newf(apperr.CodeNotFound, "Entry not found")
	}
	return id, nil
}
