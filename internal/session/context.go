// Package session carries the signed-in user and that user's workspace
// through a request, replacing any process-wide notion of "current user".
package session

import (
	"context"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// Context is the per-request view of a signed-in user.
type Context struct {
	User      models.User
	Token     string
	Workspace *Workspace
}

// UserID is the user's id as used in storage keys.
func (c *Context) UserID() string { return c.User.ID.String() }

type ctxKey struct{}

// NewContext returns ctx carrying sc.
func NewContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session stored by NewContext.
func FromContext(ctx context.Context) (*Context, bool) {
	sc, ok := ctx.Value(ctxKey{}).(*Context)
	return sc, ok && sc != nil
}
