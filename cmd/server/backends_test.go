package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AnshRaj112/daily-journal-backend/internal/auth"
	"github.com/AnshRaj112/daily-journal-backend/internal/blob"
	"github.com/AnshRaj112/daily-journal-backend/internal/config"
	"github.com/AnshRaj112/daily-journal-backend/internal/entries"
	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

func TestEntryPersisterSelection(t *testing.T) {
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	cfg := config.StorageConfig{
		RedisURI:     "redis://" + mr.Addr(),
		BadgerDir:    filepath.Join(dir, "badger"),
		EntryFileDir: filepath.Join(dir, "files"),
	}

	for _, tt := range []struct {
		store string
		name  string
	}{
		{"", "memory"},
		{"memory", "memory"},
		{"redis", "redis"},
		{"badger", "badger"},
		{"file", "file"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			b := &backends{}
			defer b.Close()
			c := cfg
			c.EntryStore = tt.store
			p, err := b.entryPersister(context.Background(), c)
			require.NoError(t, err)
			assert.Equal(t, tt.name, p.Name())

			ctx := context.Background()
			key := entries.Key("u1")
			require.NoError(t, p.Save(ctx, key, []models.JournalEntry{{ID: 1, BlobRef: "r1"}}))
			got, err := p.Load(ctx, key)
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.Equal(t, int64(1), got[0].ID)
		})
	}
}

func TestRedisBackendsShareOneClient(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.StorageConfig{RedisURI: "redis://" + mr.Addr(), SessionStore: "redis", EntryStore: "redis"}

	b := &backends{}
	defer b.Close()
	_, err := b.sessionStore(context.Background(), cfg)
	require.NoError(t, err)
	_, err = b.entryPersister(context.Background(), cfg)
	require.NoError(t, err)
	assert.Len(t, b.closers, 1)
}

func TestRedisBackendRequiresURI(t *testing.T) {
	b := &backends{}
	_, err := b.sessionStore(context.Background(), config.StorageConfig{SessionStore: "redis"})
	assert.Error(t, err)
}

func TestUserRepositorySQLite(t *testing.T) {
	b := &backends{}
	defer b.Close()
	cfg := config.StorageConfig{UserStore: "sqlite", SQLitePath: filepath.Join(t.TempDir(), "journal.db")}

	users, err := b.userRepository(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &auth.SQLUsers{}, users)

	mem, err := b.userRepository(context.Background(), config.StorageConfig{UserStore: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &auth.MemoryUsers{}, mem)
}

func TestBlobStoreSelection(t *testing.T) {
	b := &backends{}

	s, scoped, err := b.blobStore(config.BlobConfig{Store: "memory"})
	require.NoError(t, err)
	assert.True(t, scoped)
	assert.IsType(t, &blob.MemoryStore{}, s)

	s, scoped, err = b.blobStore(config.BlobConfig{Store: "disk", Dir: t.TempDir()})
	require.NoError(t, err)
	assert.False(t, scoped)
	assert.IsType(t, &blob.DiskStore{}, s)
}
