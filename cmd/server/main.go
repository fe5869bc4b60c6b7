package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/config"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
	"github.com/AnshRaj112/daily-journal-backend/internal/middleware"
	"github.com/AnshRaj112/daily-journal-backend/internal/notify"
	"github.com/AnshRaj112/daily-journal-backend/internal/routes"
	"github.com/AnshRaj112/daily-journal-backend/internal/session"
	"github.com/AnshRaj112/daily-journal-backend/internal/summary"
)

const shutdownTimeout = 20 * time.Second

var log zerolog.Logger

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "daily-journal:", err)
		os.Exit(1)
	}
}

func run() error {
	// Load env
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: !cfg.Server.IsProduction()})
	log = logger.WithComponent("server")
	if envErr != nil {
		log.Debug().Msg("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := &backends{}
	defer b.Close()

	users, err := b.userRepository(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	sessions, err := b.sessionStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}
	persister, err := b.entryPersister(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("open entry store: %w", err)
	}
	blobs, sessionScoped, err := b.blobStore(cfg.Blobs)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	log.Info().
		Str("users", cfg.Storage.UserStore).
		Str("sessions", cfg.Storage.SessionStore).
		Str("entries", persister.Name()).
		Str("blobs", cfg.Blobs.Store).
		Msg("storage ready")

	g, ctx := errgroup.WithContext(ctx)

	// Events: local hub, optionally fed through Redis so every instance
	// sees every user's events.
	hub := notify.NewHub()
	var publisher notify.Publisher = hub
	if cfg.Server.EventsRelay {
		client, err := b.redisClient(ctx, cfg.Storage)
		if err != nil {
			return fmt.Errorf("events relay: %w", err)
		}
		relay := notify.NewRedisRelay(client, hub)
		publisher = relay
		g.Go(func() error {
			relay.Run(ctx)
			return nil
		})
	}

	generator, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	summaries := summary.NewService(generator,
		summary.WithTimeout(cfg.Summary.Timeout),
		summary.WithPublisher(publisher),
	)

	managerOpts := []session.ManagerOption{
		session.WithPublisher(publisher),
		session.WithMaxUpload(cfg.Blobs.MaxUploadBytes),
		session.WithCaptureTimings(cfg.Capture.Timeslice, cfg.Capture.Tick),
	}
	if sessionScoped {
		managerOpts = append(managerOpts, session.WithSessionScopedBlobs())
	}
	workspaces := session.NewManager(persister, blobs, managerOpts...)

	authSvc := auth.NewService(users, sessions)
	summaryLimiter := middleware.NewSummaryLimiter()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(logger.RequestLogger)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))

	// Production: SecurityHeaders → HostCheck → GlobalRateLimit → LoginRateLimit
	// Non-production: Redis-based rate limit when Redis is configured
	if cfg.Server.IsProduction() {
		security := middleware.NewSecurity()
		for _, mw := range security.Production(cfg.Server.AllowedHost) {
			r.Use(mw)
		}
		g.Go(func() error { return security.Run(ctx) })
		log.Info().Str("host", cfg.Server.AllowedHost).Msg("production security enabled")
	} else if cfg.Storage.RedisURI != "" {
		client, err := b.redisClient(ctx, cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limit disabled")
		} else {
			r.Use(middleware.RedisRateLimit(client, middleware.DefaultRedisRateLimit()))
		}
	}

	routes.SetupRoutes(r, routes.Deps{
		Auth:             authSvc,
		Workspaces:       workspaces,
		Blobs:            blobs,
		Summaries:        summaries,
		Hub:              hub,
		SummaryLimiter:   summaryLimiter,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		MaxUploadBytes:   cfg.Blobs.MaxUploadBytes,
		UploadsPerMinute: cfg.Server.UploadsPerMinute,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				summaryLimiter.Sweep(30 * time.Minute)
			}
		}
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Server.Environment).Msg("daily journal backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
		if err := summaries.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("summary shutdown")
		}
		workspaces.CloseAll(shutdownCtx)
		return nil
	})

	return g.Wait()
}

// newGenerator picks the summary strategy. The template file, when set,
// is watched and reloaded until ctx is done.
func newGenerator(ctx context.Context, cfg *config.Config) (summary.Generator, error) {
	if cfg.Summary.Generator == "llm" {
		chatModel, err := cfg.AI.NewChatModel(ctx)
		if err != nil {
			return nil, fmt.Errorf("create chat model: %w", err)
		}
		gen, err := summary.NewLLMGenerator(ctx, chatModel)
		if err != nil {
			return nil, err
		}
		log.Info().Str("model", cfg.AI.Model).Msg("llm summaries enabled")
		return gen, nil
	}

	templates, err := summary.NewTemplateSet(cfg.Summary.TemplatesFile)
	if err != nil {
		return nil, fmt.Errorf("load summary templates: %w", err)
	}
	if err := templates.Watch(ctx); err != nil {
		log.Warn().Err(err).Msg("summary templates will not reload")
	}
	return summary.NewMockGenerator(templates,
		summary.WithDelay(cfg.Summary.MinDelay, cfg.Summary.MaxDelay),
		summary.WithFailureRate(cfg.Summary.FailureRate),
	), nil
}
