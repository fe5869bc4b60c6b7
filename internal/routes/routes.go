package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/handlers"
	"github.com/AnshRaj112/daily-journal-backend/internal/metrics"
	"github.com/AnshRaj112/daily-journal-backend/internal/middleware"
	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
	"github.com/AnshRaj112/daily-journal-backend/internal/summary"
)

// Deps is everything the API routes are built from.
type Deps struct {
	Auth             *auth.Service
	Workspaces       *session.Manager
	Blobs            blob.Store
	Summaries        *summary.Service
	Hub              *notify.Hub
	SummaryLimiter   *middleware.SummaryLimiter
	AllowedOrigins   []string
	MaxUploadBytes   int64
	UploadsPerMinute int
}

func SetupRoutes(r chi.Router, d Deps) {
	// Health check and metrics (no session)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(d.Auth, d.Workspaces)
	authHandler.RegisterPublicRoutes(r)

	entriesHandler := handlers.NewEntriesHandler(d.Blobs, d.Summaries)
	uploadsHandler := handlers.NewUploadsHandler(d.Blobs, d.MaxUploadBytes)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(d.Auth, d.Workspaces))

		authHandler.RegisterRoutes(r)
		entriesHandler.RegisterRoutes(r)
		uploadsHandler.RegisterRoutes(r)
		handlers.NewBlobsHandler(d.Blobs).RegisterRoutes(r)

		r.Group(func(r chi.Router) {
			if d.UploadsPerMinute > 0 {
				r.Use(middleware.UploadRateLimit(d.UploadsPerMinute))
			}
			uploadsHandler.RegisterSelectRoutes(r)
		})
		r.Group(func(r chi.Router) {
			if d.SummaryLimiter != nil {
				r.Use(d.SummaryLimiter.Limit)
			}
			entriesHandler.RegisterSummaryRoutes(r)
		})

		// WebSocket endpoints: the recorder link and the event stream
		handlers.NewCaptureHandler(d.Blobs, d.AllowedOrigins).RegisterRoutes(r)
		handlers.NewEventsHandler(d.Hub, d.AllowedOrigins).RegisterRoutes(r)
	})
}
