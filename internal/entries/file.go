package entries

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/AnshRaj112/daily-journal-backend/internal/models"
)

// FilePersister writes each collection to <dir>/<key>.json, replacing the
// file atomically on every save.
type FilePersister struct {
	dir string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create entry dir: %w", err)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key != filepath.Base(key) {
		return "", fmt.Errorf("invalid collection key %q", key)
	}
	return filepath.Join(p.dir, key+".json"), nil
}

func (p *FilePersister) Load(ctx context.Context, key string) ([]models.JournalEntry, error) {
	path, err := p.path(key)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []models.JournalEntry{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []models.JournalEntry{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return out, nil
}

func (p *FilePersister) Save(ctx context.Context, key string, entries []models.JournalEntry) error {
	path, err := p.path(key)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := renameio.WriteFile(path, data, 0o640); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

// Keys lists the collection keys present in the directory.
func (p *FilePersister) Keys(ctx context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(p.dir, KeyPrefix+"*.json"))
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, strings.TrimSuffix(filepath.Base(m), ".json"))
	}
	return keys, nil
}

func (p *FilePersister) Name() string { return "file" }
