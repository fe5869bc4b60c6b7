package blob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/daily-journal-backend/internal/logger"
)

const diskRefPrefix = "file:"

// DiskStore writes each blob to its own file under dir. Data and metadata
// are written atomically so a crash never leaves a half-written video.
type DiskStore struct {
	dir      string
	log      zerolog.Logger
	mu       sync.Mutex
	released map[string]struct{}
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &DiskStore{
		dir:      dir,
		log:      logger.WithComponent("blob.disk"),
		released: make(map[string]struct{}),
	}, nil
}

func (s *DiskStore) Put(ctx context.Context, contentType string, r io.Reader) (Info, error) {
	id := uuid.NewString()
	dataPath, metaPath := s.paths(id)

	pending, err := renameio.NewPendingFile(dataPath)
	if err != nil {
		return Info{}, fmt.Errorf("create pending blob: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			s.log.Debug().Err(err).Str("id", id).Msg("cleanup pending blob")
		}
	}()

	n, err := io.Copy(pending, r)
	if err != nil {
		return Info{}, fmt.Errorf("write blob data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return Info{}, fmt.Errorf("commit blob data: %w", err)
	}

	info := Info{
		Ref:         diskRefPrefix + id,
		ContentType: contentType,
		Size:        n,
		CreatedAt:   time.Now().UTC(),
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return Info{}, err
	}
	if err := renameio.WriteFile(metaPath, meta, 0o640); err != nil {
		_ = os.Remove(dataPath)
		return Info{}, fmt.Errorf("write blob metadata: %w", err)
	}
	return info, nil
}

func (s *DiskStore) Open(ctx context.Context, ref string) (io.ReadCloser, Info, error) {
	id, err := s.parse(ref)
	if err != nil {
		return nil, Info{}, err
	}
	dataPath, metaPath := s.paths(id)

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, Info{}, s.missing(ref, err)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, Info{}, fmt.Errorf("decode blob metadata: %w", err)
	}
	f, err := os.Open(dataPath)
	if err != nil {
		return nil, Info{}, s.missing(ref, err)
	}
	return f, info, nil
}

func (s *DiskStore) URL(ref string) string {
	return PlaybackPath(ref)
}

func (s *DiskStore) Release(ctx context.Context, ref string) error {
	id, err := s.parse(ref)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.released[ref]; done {
		return ErrReleased
	}
	dataPath, metaPath := s.paths(id)
	if err := os.Remove(dataPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	if err := os.Remove(metaPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn().Err(err).Str("ref", ref).Msg("remove blob metadata")
	}
	s.released[ref] = struct{}{}
	return nil
}

func (s *DiskStore) paths(id string) (string, string) {
	return filepath.Join(s.dir, id+".bin"), filepath.Join(s.dir, id+".json")
}

func (s *DiskStore) parse(ref string) (string, error) {
	id, ok := strings.CutPrefix(ref, diskRefPrefix)
	if !ok {
		return "", ErrNotFound
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", ErrNotFound
	}
	return id, nil
}

func (s *DiskStore) missing(ref string, err error) error {
	if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, done := s.released[ref]; done {
		return ErrReleased
	}
	return ErrNotFound
}
