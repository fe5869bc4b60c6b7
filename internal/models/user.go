package models

import (
	"time"

	"github.com/google/uuid"
)

// Preferences are per-user settings.
type Preferences struct {
	Theme         string `json:"theme"`
	Notifications bool   `json:"notifications"`
	AutoSave      bool   `json:"auto_save"`
}

// DefaultPreferences is what every new account starts with.
func DefaultPreferences() Preferences {
	return Preferences{Theme: "light", Notifications: true, AutoSave: true}
}

type User struct {
	ID           uuid.UUID   `json:"id"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastLogin    time.Time   `json:"last_login"`
	Email        string      `json:"email"`
	Name         string      `json:"name"`
	AvatarURL    string      `json:"avatar"`
	PasswordHash string      `json:"-"` // Don't return password in JSON
	Preferences  Preferences `json:"preferences"`
}
