package capture

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
)

// Constraints are the capture settings requested from the device.
type Constraints struct {
	Width            int  `json:"width"`
	Height           int  `json:"height"`
	FrameRate        int  `json:"frame_rate"`
	EchoCancellation bool `json:"echo_cancellation"`
	NoiseSuppression bool `json:"noise_suppression"`
	SampleRate       int  `json:"sample_rate"`
}

// DefaultConstraints asks for 720p at 30 fps with cleaned-up 44.1 kHz audio.
func DefaultConstraints() Constraints {
	return Constraints{
		Width:            1280,
		Height:           720,
		FrameRate:        30,
		EchoCancellation: true,
		NoiseSuppression: true,
		SampleRate:       44100,
	}
}

// MediaSource grants access to a camera and microphone.
type MediaSource interface {
	GetUserMedia(ctx context.Context, c Constraints) (MediaStream, error)
}

// MediaStream is a live camera and microphone stream.
type MediaStream interface {
	IsTypeSupported(mimeType string) bool
	// NewRecorder starts encoding. An empty mimeType selects the platform
	// default. Chunks arrive on sink every timeslice.
	NewRecorder(ctx context.Context, mimeType string, timeslice time.Duration, sink Sink) (Recorder, error)
	// Release stops every track and frees the device.
	Release()
}

// Recorder encodes a stream into chunks.
type Recorder interface {
	// Stop ends encoding and returns after the final chunk was delivered.
	Stop(ctx context.Context) error
}

// Sink receives recorder output.
type Sink interface {
	Chunk(data []byte)
	Fail(err error)
}

// Preferred container formats, tried in order before the platform default.
const (
	MimeVP9 = "video/webm;codecs=vp9"
	MimeVP8 = "video/webm;codecs=vp8"

	// DefaultBlobType labels recordings made with the platform default.
	DefaultBlobType = "video/webm"
)

// NegotiateMimeType picks vp9, then vp8, then "" for the platform default.
func NegotiateMimeType(s MediaStream) string {
	for _, mt := range []string{MimeVP9, MimeVP8} {
		if s.IsTypeSupported(mt) {
			return mt
		}
	}
	return ""
}

// MediaError is a failure reported by a device or encoder, named the way
// browsers name DOMExceptions.
type MediaError struct {
	Name    string
	Message string
}

func (e *MediaError) Error() string {
	if e.Message == "" {
		return e.Name
	}
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// Device error names.
const (
	NotAllowedError   = "NotAllowedError"
	NotFoundError     = "NotFoundError"
	NotReadableError  = "NotReadableError"
	NotSupportedError = "NotSupportedError"
)

// MapError converts a device failure into an application error.
// Errors that already carry a code pass through.
func MapError(err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var me *MediaError
	if errors.As(err, &me) {
		switch me.Name {
		case NotAllowedError, "SecurityError":
			return apperr.Wrap(apperr.CodePermissionDenied, err)
		case NotFoundError, "OverconstrainedError":
			return apperr.Wrap(apperr.CodeDeviceNotFound, err)
		case NotReadableError, "AbortError":
			return apperr.Wrap(apperr.CodeDeviceBusy, err)
		case NotSupportedError:
			return apperr.Wrap(apperr.CodeUnsupportedBrowser, err)
		}
	}
	return apperr.Wrap(apperr.CodeRecordingInterrupted, err)
}
