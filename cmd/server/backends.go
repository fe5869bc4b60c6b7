package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/config"
	"github.com/AnshRaj112/daily-journal-backend/internal/database"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
)

// backends holds the connections opened for the configured stores. Close
// releases them in reverse order of opening.
type backends struct {
	redis   *redis.Client
	mongo   *mongo.Client
	mongoDB *mongo.Database
	closers []func() error
}

func (b *backends) onClose(fn func() error) {
	b.closers = append(b.closers, fn)
}

func (b *backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close backend")
		}
	}
	b.closers = nil
}

// redisClient connects on first use.
func (b *backends) redisClient(ctx context.Context, cfg config.StorageConfig) (*redis.Client, error) {
	if b.redis != nil {
		return b.redis, nil
	}
	if cfg.RedisURI == "" {
		return nil, fmt.Errorf("REDIS_URI is required")
	}
	client, err := database.ConnectRedis(ctx, cfg.RedisURI)
	if err != nil {
		return nil, err
	}
	b.redis = client
	b.onClose(client.Close)
	return client, nil
}

// mongoDatabase connects on first use.
func (b *backends) mongoDatabase(ctx context.Context, cfg config.StorageConfig) (*mongo.Database, error) {
	if b.mongoDB != nil {
		return b.mongoDB, nil
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("MONGODB_URI is required")
	}
	client, db, err := database.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	b.mongo, b.mongoDB = client, db
	log.Info().Str("uri", database.MaskURI(cfg.MongoURI)).Str("db", db.Name()).Msg("mongodb connected")
	b.onClose(func() error {
		database.DisconnectMongo(client)
		return nil
	})
	return db, nil
}

func (b *backends) userRepository(ctx context.Context, cfg config.StorageConfig) (auth.UserRepository, error) {
	var (
		db      *sql.DB
		dialect auth.Dialect
		err     error
	)
	switch cfg.UserStore {
	case "memory":
		return auth.NewMemoryUsers(), nil
	case "postgres":
		db, err = database.ConnectPostgres(ctx, cfg.PostgresURI)
		dialect = auth.Postgres
	default:
		db, err = database.OpenSQLite(ctx, cfg.SQLitePath)
		dialect = auth.SQLite
	}
	if err != nil {
		return nil, err
	}
	b.onClose(db.Close)

	users := auth.NewSQLUsers(db, dialect)
	if err := users.Migrate(ctx); err != nil {
		return nil, err
	}
	return users, nil
}

func (b *backends) sessionStore(ctx context.Context, cfg config.StorageConfig) (auth.SessionStore, error) {
	if cfg.SessionStore != "redis" {
		return auth.NewMemorySessions(), nil
	}
	client, err := b.redisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return auth.NewRedisSessions(client), nil
}

func (b *backends) entryPersister(ctx context.Context, cfg config.StorageConfig) (entries.Persister, error) {
	switch cfg.EntryStore {
	case "redis":
		client, err := b.redisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return entries.NewRedisPersister(client), nil
	case "mongo":
		db, err := b.mongoDatabase(ctx, cfg)
		if err != nil {
			return nil, err
		}
		p := entries.NewMongoPersister(db)
		if err := p.EnsureIndexes(ctx); err != nil {
			log.Warn().Err(err).Msg("ensure entry indexes")
		}
		return p, nil
	case "badger":
		p, err := entries.OpenBadger(cfg.BadgerDir)
		if err != nil {
			return nil, err
		}
		b.onClose(p.Close)
		return p, nil
	case "file":
		p, err := entries.NewFilePersister(cfg.EntryFileDir)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return entries.NewMemoryPersister(), nil
	}
}

// blobStore returns the video store and whether its blobs live only as long
// as the session that created them.
func (b *backends) blobStore(cfg config.BlobConfig) (blob.Store, bool, error) {
	switch cfg.Store {
	case "disk":
		s, err := blob.NewDiskStore(cfg.Dir)
		if err != nil {
			return nil, false, err
		}
		return s, false, nil
	case "cloudinary":
		s, err := blob.NewCloudinaryStore(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		if err != nil {
			return nil, false, err
		}
		return s, false, nil
	default:
		return blob.NewMemoryStore(), true, nil
	}
}
