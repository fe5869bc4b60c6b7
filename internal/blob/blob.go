// Package blob stores the binary video data behind journal entries. A blob
// is owned by exactly one holder at a time and released exactly once.
package blob

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned for refs the store has never issued.
	ErrNotFound = errors.New("blob not found")
	// ErrReleased is returned when a ref is used after its release.
	ErrReleased = errors.New("blob already released")
)

// Info describes a stored blob.
type Info struct {
	Ref         string    `json:"ref"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the capability the controllers and the entry store use to hold
// video data. Refs are opaque to callers.
type Store interface {
	Put(ctx context.Context, contentType string, r io.Reader) (Info, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, Info, error)
	URL(ref string) string
	Release(ctx context.Context, ref string) error
}

// PlaybackPath is the API path a locally served blob is reachable under.
func PlaybackPath(ref string) string {
	return "/api/blobs/" + ref
}
