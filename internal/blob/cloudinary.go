package blob

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
)

const cloudinaryRefPrefix = "cld:"

// CloudinaryStore keeps videos in a Cloudinary folder. The ref carries the
// public id; playback goes straight to Cloudinary's CDN.
type CloudinaryStore struct {
	cld    *cloudinary.Cloudinary
	folder string
	client *http.Client

	mu       sync.RWMutex
	infos    map[string]Info
	released map[string]struct{}
	secure   map[string]string
}

func NewCloudinaryStore(cloudName, apiKey, apiSecret, folder string) (*CloudinaryStore, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudinary: %w", err)
	}
	if folder == "" {
		folder = "daily-journal"
	}
	return &CloudinaryStore{
		cld:      cld,
		folder:   folder,
		client:   &http.Client{Timeout: 2 * time.Minute},
		infos:    make(map[string]Info),
		released: make(map[string]struct{}),
		secure:   make(map[string]string),
	}, nil
}

func (s *CloudinaryStore) Put(ctx context.Context, contentType string, r io.Reader) (Info, error) {
	publicID := uuid.NewString()
	res, err := s.cld.Upload.Upload(ctx, r, uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicID,
		ResourceType: "video",
	})
	if err != nil {
		return Info{}, fmt.Errorf("failed to upload to Cloudinary: %w", err)
	}
	if res.Error.Message != "" {
		return Info{}, fmt.Errorf("failed to upload to Cloudinary: %s", res.Error.Message)
	}

	info := Info{
		Ref:         cloudinaryRefPrefix + res.PublicID,
		ContentType: contentType,
		Size:        int64(res.Bytes),
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.infos[info.Ref] = info
	s.secure[info.Ref] = res.SecureURL
	s.mu.Unlock()
	return info, nil
}

func (s *CloudinaryStore) Open(ctx context.Context, ref string) (io.ReadCloser, Info, error) {
	s.mu.RLock()
	info, ok := s.infos[ref]
	secureURL := s.secure[ref]
	_, released := s.released[ref]
	s.mu.RUnlock()
	if released {
		return nil, Info{}, ErrReleased
	}
	if !ok {
		return nil, Info{}, ErrNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, secureURL, nil)
	if err != nil {
		return nil, Info{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, Info{}, fmt.Errorf("fetch from Cloudinary: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, Info{}, fmt.Errorf("fetch from Cloudinary: status %d", resp.StatusCode)
	}
	return resp.Body, info, nil
}

// URL returns the CDN address when known, else the local playback path.
func (s *CloudinaryStore) URL(ref string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.secure[ref]; ok {
		return u
	}
	return PlaybackPath(ref)
}

func (s *CloudinaryStore) Release(ctx context.Context, ref string) error {
	publicID, ok := strings.CutPrefix(ref, cloudinaryRefPrefix)
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	if _, done := s.released[ref]; done {
		s.mu.Unlock()
		return ErrReleased
	}
	s.released[ref] = struct{}{}
	s.mu.Unlock()

	res, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     publicID,
		ResourceType: "video",
	})
	if err != nil {
		return fmt.Errorf("failed to delete from Cloudinary: %w", err)
	}
	if res.Result == "not found" {
		return ErrNotFound
	}

	s.mu.Lock()
	delete(s.infos, ref)
	delete(s.secure, ref)
	s.mu.Unlock()
	return nil
}
