package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.User, error)
}

// Workspaces opens the workspace of a signed-in user.
type Workspaces interface {
	Open(ctx context.Context, userID string) (*session.Workspace, error)
}

// BearerToken extracts the token from an Authorization header. Browser
// WebSocket clients cannot set headers, so the token query parameter is
// accepted as a fallback.
func BearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireSession rejects requests without a valid session and stores a
// session.Context carrying the user's workspace for the handlers.
func RequireSession(auth Authenticator, workspaces Workspaces) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Authentication required", string(apperr.CodeUnauthorized))
				return
			}
			user, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				code := apperr.CodeOf(err)
				writeError(w, apperr.HTTPStatus(code), apperr.MessageOf(err), string(code))
				return
			}
			ws, err := workspaces.Open(r.Context(), user.ID.String())
			if err != nil {
				writeError(w, http.StatusInternalServerError, "Failed to load your journal", string(apperr.CodeInternal))
				return
			}
			sc := &session.Context{User: user, Token: token, Workspace: ws}
			next.ServeHTTP(w, r.WithContext(session.NewContext(r.Context(), sc)))
		})
	}
}
