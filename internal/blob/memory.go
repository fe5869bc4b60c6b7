package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryItem struct {
	info Info
	data []byte
}

// releaseHistory bounds how many released refs a MemoryStore remembers.
const releaseHistory = 4096

// MemoryStore keeps blobs in process memory. Refs use the "blob:" scheme.
// The most recent released refs are remembered so a stale ref reports
// ErrReleased rather than ErrNotFound.
type MemoryStore struct {
	mu       sync.RWMutex
	items    map[string]*memoryItem
	released map[string]int
	order    []string
	history  int
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]*memoryItem),
		released: make(map[string]int),
		history:  releaseHistory,
		now:      time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, contentType string, r io.Reader) (Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, fmt.Errorf("read blob: %w", err)
	}
	info := Info{
		Ref:         "blob:" + uuid.NewString(),
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   s.now().UTC(),
	}
	s.mu.Lock()
	s.items[info.Ref] = &memoryItem{info: info, data: data}
	s.mu.Unlock()
	return info, nil
}

func (s *MemoryStore) Open(ctx context.Context, ref string) (io.ReadCloser, Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[ref]
	if !ok {
		if s.released[ref] > 0 {
			return nil, Info{}, ErrReleased
		}
		return nil, Info{}, ErrNotFound
	}
	return seekNopCloser{bytes.NewReader(item.data)}, item.info, nil
}

// seekNopCloser keeps the reader seekable so playback can serve ranges.
type seekNopCloser struct{ *bytes.Reader }

func (seekNopCloser) Close() error { return nil }

func (s *MemoryStore) URL(ref string) string {
	return PlaybackPath(ref)
}

func (s *MemoryStore) Release(ctx context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[ref]; !ok {
		if s.released[ref] > 0 {
			s.released[ref]++
			return ErrReleased
		}
		return ErrNotFound
	}
	delete(s.items, ref)
	s.released[ref]++
	s.order = append(s.order, ref)
	if len(s.order) > s.history {
		delete(s.released, s.order[0])
		s.order = slices.Delete(s.order, 0, 1)
	}
	return nil
}

// Releases reports how many times Release was called on ref after it was
// stored, including rejected repeats.
func (s *MemoryStore) Releases(ref string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.released[ref]
}

// Len is the number of live blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
