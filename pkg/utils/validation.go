package utils

import (
	"net/url"
	"strings"
)

const (
	MinPasswordLength = 6
	MaxNameLength     = 80
)

// Themes accepted in user preferences.
var Themes = map[string]bool{
	"light":  true,
	"dark":   true,
	"system": true,
}

// ValidationError represents a validation error on one field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateEmail requires a non-empty address containing '@'.
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &ValidationError{Field: "email", Message: "Email is required"}
	}
	if !strings.Contains(email, "@") {
		return &ValidationError{Field: "email", Message: "Please enter a valid email address"}
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(field, password string) error {
	if len(password) < MinPasswordLength {
		return &ValidationError{Field: field, Message: "Password must be at least 6 characters long"}
	}
	return nil
}

// ValidateName rejects blank or overly long display names.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "Name cannot be empty"}
	}
	if len([]rune(name)) > MaxNameLength {
		return &ValidationError{Field: "name", Message: "Name must be at most 80 characters"}
	}
	return nil
}

// ValidateTheme accepts only known themes.
func ValidateTheme(theme string) error {
	if !Themes[theme] {
		return &ValidationError{Field: "theme", Message: "Theme must be light, dark or system"}
	}
	return nil
}

// NormalizeEmail lowercases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// DisplayNameFromEmail is the part of an address before '@'.
func DisplayNameFromEmail(email string) string {
	local, _, _ := strings.Cut(strings.TrimSpace(email), "@")
	return local
}

// AvatarURL builds the generated avatar address for name.
func AvatarURL(name string) string {
	return "https://ui-avatars.com/api/?name=" + url.QueryEscape(name) + "&background=4f46e5&color=fff"
}
