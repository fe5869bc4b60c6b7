package auth

import (
	"strings"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

// ProfileUpdate is a partial profile change. Nil fields are left as they are.
type ProfileUpdate struct {
	Name          *string `json:"name,omitempty"`
	Email         *string `json:"email,omitempty"`
	Theme         *string `json:"theme,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	AutoSave      *bool   `json:"auto_save,omitempty"`
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return p.Name == nil && p.Email == nil && p.Theme == nil && p.Notifications == nil && p.AutoSave == nil
}

// Validate checks every present field.
func (p ProfileUpdate) Validate() error {
	if p.Email != nil {
		if !strings.Contains(*p.Email, "@") {
			return &utils.ValidationError{Field: "email", Message: "Invalid email format"}
		}
	}
	if p.Name != nil {
		if err := utils.ValidateName(*p.Name); err != nil {
			return err
		}
	}
	if p.Theme != nil {
		if err := utils.ValidateTheme(*p.Theme); err != nil {
			return err
		}
	}
	return nil
}

// Apply merges the update into u. A changed name regenerates the avatar.
func (p ProfileUpdate) Apply(u *models.User) {
	if p.Email != nil {
		u.Email = utils.NormalizeEmail(*p.Email)
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name != u.Name {
			u.Name = name
			u.AvatarURL = utils.AvatarURL(name)
		}
	}
	if p.Theme != nil {
		u.Preferences.Theme = *p.Theme
	}
	if p.Notifications != nil {
		u.Preferences.Notifications = *p.Notifications
	}
	if p.AutoSave != nil {
		u.Preferences.AutoSave = *p.AutoSave
	}
}
