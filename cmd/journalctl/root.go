package main

import (
	"context"
	"fmt"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/AnshRaj112/daily-journal-backend/internal/config"
	"github.com/AnshRaj112/daily-journal-backend/internal/database"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
)

type storeFlags struct {
	backend  string
	dir      string
	redisURI string
	mongoURI string
	verbose  bool
}

// store is an opened persister and the cleanup for its connection.
type store struct {
	entries.Persister
	close func()
}

func newRootCmd() *cobra.Command {
	flags := &storeFlags{}
	root := &cobra.Command{
		Use:   "journalctl",
		Short: "Inspect daily journal collections",
		Long: `Inspect the video journal collections stored by the daily journal backend.

Quick Start:
  journalctl list                      # List users with stored entries
  journalctl list <user-id>            # List one user's entries
  journalctl stats <user-id>           # Dashboard figures for a user
  journalctl export <user-id> -f yaml  # Export a user's entries`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := "warn"
			if flags.verbose {
				level = "debug"
			}
			logger.Configure(logger.Config{Level: level, Output: cmd.ErrOrStderr(), Service: "journalctl", Pretty: true})
		},
	}

	// Defaults come from the same environment the server reads.
	_ = godotenv.Load()
	defaults := config.StorageConfig{EntryStore: "file", EntryFileDir: "data/entries", BadgerDir: "data/entries.badger"}
	if cfg, err := config.Load(); err == nil {
		defaults = cfg.Storage
	}
	if defaults.EntryStore == "memory" {
		defaults.EntryStore = "file"
	}
	dir := defaults.EntryFileDir
	if defaults.EntryStore == "badger" {
		dir = defaults.BadgerDir
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.backend, "store", defaults.EntryStore, "Entry store: file, badger, redis or mongo")
	pf.StringVar(&flags.dir, "dir", dir, "Directory of the file or badger store")
	pf.StringVar(&flags.redisURI, "redis-uri", defaults.RedisURI, "Redis connection URI")
	pf.StringVar(&flags.mongoURI, "mongo-uri", defaults.MongoURI, "MongoDB connection URI")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Enable verbose logging")
	root.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	root.AddCommand(newListCmd(flags), newStatsCmd(flags), newExportCmd(flags))
	return root
}

// open connects to the configured entry store.
func (f *storeFlags) open(ctx context.Context) (*store, error) {
	switch f.backend {
	case "file":
		p, err := entries.NewFilePersister(f.dir)
		if err != nil {
			return nil, err
		}
		return &store{Persister: p, close: func() {}}, nil
	case "badger":
		p, err := entries.OpenBadger(f.dir)
		if err != nil {
			return nil, err
		}
		return &store{Persister: p, close: func() { _ = p.Close() }}, nil
	case "redis":
		client, err := database.ConnectRedis(ctx, f.redisURI)
		if err != nil {
			return nil, err
		}
		return &store{Persister: entries.NewRedisPersister(client), close: func() { _ = client.Close() }}, nil
	case "mongo":
		client, db, err := database.ConnectMongo(ctx, f.mongoURI)
		if err != nil {
			return nil, err
		}
		return &store{Persister: entries.NewMongoPersister(db), close: func() { database.DisconnectMongo(client) }}, nil
	default:
		return nil, fmt.Errorf("unsupported store %q: the memory store is not shared with other processes", f.backend)
	}
}

// withStore opens the store for the duration of fn.
func withStore(cmd *cobra.Command, flags *storeFlags, fn func(context.Context, *store, io.Writer) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := flags.open(ctx)
	if err != nil {
		return fmt.Errorf("open %s store: %w", flags.backend, err)
	}
	defer s.close()
	return fn(ctx, s, cmd.OutOrStdout())
}
