package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// WorkspaceCloser tears down a user's workspace on logout.
type WorkspaceCloser interface {
	Close(ctx context.Context, userID string)
}

// AuthHandler serves account routes.
type AuthHandler struct {
	svc        *auth.Service
	workspaces WorkspaceCloser
}

func NewAuthHandler(svc *auth.Service, workspaces WorkspaceCloser) *AuthHandler {
	return &AuthHandler{svc: svc, workspaces: workspaces}
}

type AuthResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	User    *models.User `json:"user,omitempty"`
	Token   string       `json:"token,omitempty"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type ResetPasswordRequest struct {
	Email string `json:"email"`
}

// RegisterPublicRoutes mounts the routes usable without a session.
func (h *AuthHandler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/api/auth/register", h.Register)
	r.Post("/api/auth/login", h.Login)
	r.Post("/api/auth/reset-password", h.ResetPassword)
}

// RegisterRoutes mounts the routes that need a session.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/auth/logout", h.Logout)
	r.Get("/api/auth/me", h.Me)
	r.Put("/api/auth/profile", h.UpdateProfile)
	r.Put("/api/auth/password", h.ChangePassword)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, token, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{
		Success: true,
		Message: "Account created successfully",
		User:    &user,
		Token:   token,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	user, token, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "Signed in successfully",
		User:    &user,
		Token:   token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Logout(r.Context(), sc.Token); err != nil {
		writeError(w, err)
		return
	}
	h.workspaces.Close(r.Context(), sc.UserID())
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "Signed out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	user := sc.User
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "OK", User: &user})
}

func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var upd auth.ProfileUpdate
	if err := decodeJSON(w, r, &upd); err != nil {
		writeError(w, err)
		return
	}
	user, err := h.svc.UpdateProfile(r.Context(), sc.User.ID, upd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "Profile updated", User: &user})
}

// ChangePassword ends every session of the user, including this one.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sc, err := sessionFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req ChangePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ChangePassword(r.Context(), sc.User.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	h.workspaces.Close(r.Context(), sc.UserID())
	writeJSON(w, http.StatusOK, AuthResponse{Success: true, Message: "Password changed. Please sign in again."})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{
		Success: true,
		Message: "If an account exists for that address, reset instructions have been sent",
	})
}
