// Package apperr defines the error taxonomy shared by the capture, upload,
// entry and summary components. Every error that reaches a user carries a
// Code and a message safe to display.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure.
type Code string

const (
	CodePermissionDenied     Code = "PERMISSION_DENIED"
	CodeDeviceNotFound       Code = "DEVICE_NOT_FOUND"
	CodeDeviceBusy           Code = "DEVICE_BUSY"
	CodeUnsupportedBrowser   Code = "UNSUPPORTED_BROWSER"
	CodeRecordingInterrupted Code = "RECORDING_INTERRUPTED"

	CodeInvalidType Code = "INVALID_TYPE"
	CodeTooLarge    Code = "TOO_LARGE"
	CodeEmpty       Code = "EMPTY"
	CodeNoFile      Code = "NO_FILE"

	CodeSummaryGenerationFailed Code = "SUMMARY_GENERATION_FAILED"
	CodeStorageWriteFailed      Code = "STORAGE_WRITE_FAILED"

	CodeInvalidState       Code = "INVALID_STATE"
	CodeValidation         Code = "VALIDATION_FAILED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeConflict           Code = "CONFLICT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeInternal           Code = "INTERNAL"
)

var defaultMessages = map[Code]string{
	CodePermissionDenied:        "Camera access denied. Please allow camera permissions and try again.",
	CodeDeviceNotFound:          "No camera or microphone found. Please connect a camera and try again.",
	CodeDeviceBusy:              "Camera is already in use by another application.",
	CodeUnsupportedBrowser:      "Video recording is not supported in this browser.",
	CodeRecordingInterrupted:    "Recording error occurred. Please try again.",
	CodeInvalidType:             "Please select a valid video file (MP4, WebM, AVI, MOV, etc.)",
	CodeTooLarge:                "File size exceeds 100 MB limit",
	CodeEmpty:                   "Selected file appears to be empty",
	CodeNoFile:                  "No file selected",
	CodeSummaryGenerationFailed: "Failed to generate summary. Please try again.",
	CodeStorageWriteFailed:      "Your entries could not be saved to storage. Changes are kept for this session only.",
	CodeInvalidState:            "That action is not available right now.",
	CodeValidation:              "Invalid request",
	CodeInvalidCredentials:      "Invalid email or password",
	CodeUnauthorized:            "Authentication required",
	CodeConflict:                "Resource already exists",
	CodeNotFound:                "Not found",
	CodeInternal:                "Something went wrong. Please try again.",
}

// Error is a coded application error. Err holds the underlying cause, if any.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinels work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// New returns an error with the default message for code.
func New(code Code) *Error {
	return &Error{Code: code, Message: DefaultMessage(code)}
}

// Newf returns an error with a custom message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches code and its default message to cause.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, Message: DefaultMessage(code), Err: cause}
}

// DefaultMessage returns the user-facing message for code.
func DefaultMessage(code Code) string {
	if msg, ok := defaultMessages[code]; ok {
		return msg
	}
	return defaultMessages[CodeInternal]
}

// CodeOf extracts the code from err, or CodeInternal for foreign errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// MessageOf returns the display message for err.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return DefaultMessage(CodeInternal)
}

// View is the JSON form of an error shown to a user.
type View struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// ViewOf returns the displayable form of err, or nil.
func ViewOf(err error) *View {
	if err == nil {
		return nil
	}
	return &View{Code: CodeOf(err), Message: MessageOf(err)}
}

// Retryable reports whether the user may simply try the same action again.
func Retryable(code Code) bool {
	switch code {
	case CodeDeviceBusy, CodeRecordingInterrupted, CodeSummaryGenerationFailed, CodeStorageWriteFailed:
		return true
	}
	return false
}

// HTTPStatus maps a code to the status the API responds with.
func HTTPStatus(code Code) int {
	switch code {
	case CodeInvalidType, CodeEmpty, CodeNoFile, CodeValidation:
		return http.StatusBadRequest
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeInvalidCredentials, CodeUnauthorized:
		return http.StatusUnauthorized
	case CodePermissionDenied:
		return http.StatusForbidden
	case CodeNotFound, CodeDeviceNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidState, CodeDeviceBusy:
		return http.StatusConflict
	case CodeUnsupportedBrowser:
		return http.StatusNotImplemented
	case CodeSummaryGenerationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is checks.
var (
	ErrPermissionDenied        = New(CodePermissionDenied)
	ErrDeviceNotFound          = New(CodeDeviceNotFound)
	ErrDeviceBusy              = New(CodeDeviceBusy)
	ErrUnsupportedBrowser      = New(CodeUnsupportedBrowser)
	ErrRecordingInterrupted    = New(CodeRecordingInterrupted)
	ErrInvalidType             = New(CodeInvalidType)
	ErrTooLarge                = New(CodeTooLarge)
	ErrEmpty                   = New(CodeEmpty)
	ErrNoFile                  = New(CodeNoFile)
	ErrSummaryGenerationFailed = New(CodeSummaryGenerationFailed)
	ErrStorageWriteFailed      = New(CodeStorageWriteFailed)
	ErrInvalidState            = New(CodeInvalidState)
)
