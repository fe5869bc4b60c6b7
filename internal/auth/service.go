// Package auth manages accounts and bearer sessions for the journal API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

// RegisterRequest is a sign-up form.
type RegisterRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
	Name            string `json:"name,omitempty"`
}

// LoginRequest is a sign-in form.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Service implements sign-up, sign-in and profile management.
type Service struct {
	users    UserRepository
	sessions SessionStore
	now      func() time.Time
	log      zerolog.Logger
}

func NewService(users UserRepository, sessions SessionStore) *Service {
	return &Service{
		users:    users,
		sessions: sessions,
		now:      time.Now,
		log:      logger.WithComponent("auth"),
	}
}

// validation turns a field error into a VALIDATION_FAILED error that keeps
// the field message for display.
func validation(err error) error {
	var ve *utils.ValidationError
	if errors.As(err, &ve) {
		return &apperr.Error{Code: apperr.CodeValidation, Message: ve.Message, Err: err}
	}
	return err
}

func invalid(field, message string) error {
	return validation(&utils.ValidationError{Field: field, Message: message})
}

// Register creates an account and signs it in.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (models.User, string, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || req.ConfirmPassword == "" {
		return models.User{}, "", invalid("email", "All fields are required")
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return models.User{}, "", validation(err)
	}
	if err := utils.ValidatePassword("password", req.Password); err != nil {
		return models.User{}, "", validation(err)
	}
	if req.Password != req.ConfirmPassword {
		return models.User{}, "", invalid("confirm_password", "Passwords do not match")
	}

	email := utils.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = utils.DisplayNameFromEmail(email)
	}
	if err := utils.ValidateName(name); err != nil {
		return models.User{}, "", validation(err)
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return models.User{}, "", apperr.Wrap(apperr.CodeInternal, fmt.Errorf("hash password: %w", err))
	}
	now := s.now().UTC()
	u := models.User{
		ID:           uuid.New(),
		CreatedAt:    now,
		UpdatedAt:    now,
		LastLogin:    now,
		Email:        email,
		Name:         name,
		AvatarURL:    utils.AvatarURL(name),
		PasswordHash: hash,
		Preferences:  models.DefaultPreferences(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return models.User{}, "", apperr.Newf(apperr.CodeConflict, "User with this email already exists")
		}
		return models.User{}, "", apperr.Wrap(apperr.CodeInternal, err)
	}

	token, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return models.User{}, "", apperr.Wrap(apperr.CodeInternal, fmt.Errorf("create session: %w", err))
	}
	s.log.Info().Str("user_id", u.ID.String()).Msg("user registered")
	return u, token, nil
}

// Login checks credentials and starts a new session, replacing any
// previous one for the user.
func (s *Service) Login(ctx context.Context, req LoginRequest) (models.User, string, error) {
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return models.User{}, "", invalid("email", "Email and password are required")
	}
	if err := utils.ValidateEmail(req.Email); err != nil {
		return models.User{}, "", validation(err)
	}

	u, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(req.Email))
	if errors.Is(err, ErrUserNotFound) {
		return models.User{}, "", apperr.New(apperr.CodeInvalidCredentials)
	}
	if err != nil {
		return models.User{}, "", apperr.Wrap(apperr.CodeInternal, err)
	}
	ok, err := utils.VerifyPassword(req.Password, u.PasswordHash)
	if err != nil || !ok {
		return models.User{}, "", apperr.New(apperr.CodeInvalidCredentials)
	}

	u.LastLogin = s.now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		s.log.Warn().Err(err).Str("user_id", u.ID.String()).Msg("record last login")
	}
	token, err := s.sessions.Create(ctx, u.ID)
	if err != nil {
		return models.User{}, "", apperr.Wrap(apperr.CodeInternal, fmt.Errorf("create session: %w", err))
	}
	s.log.Info().Str("user_id", u.ID.String()).Msg("user signed in")
	return u, token, nil
}

// Logout ends the session behind token.
func (s *Service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Delete(ctx, token); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err)
	}
	return nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (models.User, error) {
	id, ok, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.CodeInternal, err)
	}
	if !ok {
		return models.User{}, apperr.New(apperr.CodeUnauthorized)
	}
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrUserNotFound) {
		return models.User{}, apperr.New(apperr.CodeUnauthorized)
	}
	if err != nil {
		return models.User{}, apperr.Wrap(apperr.CodeInternal, err)
	}
	return u, nil
}

// UpdateProfile validates and applies a partial profile change.
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, upd ProfileUpdate) (models.User, error) {
	if err := upd.Validate(); err != nil {
		return models.User{}, validation(err)
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return models.User{}, s.lookupErr(err)
	}
	upd.Apply(&u)
	u.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return models.User{}, apperr.Newf(apperr.CodeConflict, "User with this email already exists")
		}
		return models.User{}, apperr.Wrap(apperr.CodeInternal, err)
	}
	return u, nil
}

// ChangePassword replaces the password and ends every session of the user.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	if current == "" || next == "" {
		return invalid("password", "Current password and new password are required")
	}
	if err := utils.ValidatePassword("new_password", next); err != nil {
		return invalid("new_password", "New password must be at least 6 characters long")
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return s.lookupErr(err)
	}
	if ok, err := utils.VerifyPassword(current, u.PasswordHash); err != nil || !ok {
		return apperr.Newf(apperr.CodeInvalidCredentials, "Current password is incorrect")
	}
	hash, err := utils.HashPassword(next)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, err)
	}
	u.PasswordHash = hash
	u.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, u); err != nil {
		return apperr.Wrap(apperr.CodeInternal, err)
	}
	if err := s.sessions.DeleteUser(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID.String()).Msg("invalidate sessions after password change")
	}
	return nil
}

// ResetPassword accepts a reset request. No mail is sent; the response
// never reveals whether the address is registered.
func (s *Service) ResetPassword(ctx context.Context, email string) error {
	if !strings.Contains(email, "@") {
		return invalid("email", "Valid email address is required")
	}
	_, err := s.users.GetByEmail(ctx, utils.NormalizeEmail(email))
	s.log.Info().Bool("known", err == nil).Msg("password reset requested")
	return nil
}

func (s *Service) lookupErr(err error) error {
	if errors.Is(err, ErrUserNotFound) {
		return apperr.New(apperr.CodeUnauthorized)
	}
	return apperr.Wrap(apperr.CodeInternal, err)
}
