package upload

import (
	"io"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/AnshRaj112/daily-journal-backend/internal/apperr"
	"github.com/AnshRaj112/daily-journal-backend/pkg/utils"
)

// MaxFileSize is the largest accepted upload.
const MaxFileSize int64 = 100 * 1024 * 1024

var AllowedMimeTypes = map[string]bool{
	"video/mp4":       true,
	"video/webm":      true,
	"video/ogg":       true,
	"video/avi":       true,
	"video/mov":       true,
	"video/wmv":       true,
	"video/quicktime": true,
}

var extensionTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".ogg":  "video/ogg",
	".ogv":  "video/ogg",
	".avi":  "video/avi",
	".mov":  "video/quicktime",
	".wmv":  "video/wmv",
}

// File is a file handed to the controller by either input path.
type File interface {
	Name() string
	Size() int64
	ContentType() string
	Open() (io.ReadCloser, error)
}

// Validate checks f in a fixed order: presence, type, upper size bound,
// then emptiness. maxSize <= 0 means MaxFileSize.
func Validate(f File, maxSize int64) error {
	if f == nil {
		return apperr.New(apperr.CodeNoFile)
	}
	if maxSize <= 0 {
		maxSize = MaxFileSize
	}
	if !AllowedMimeTypes[baseType(f.ContentType())] {
		return apperr.New(apperr.CodeInvalidType)
	}
	if f.Size() > maxSize {
		return apperr.Newf(apperr.CodeTooLarge, "File size exceeds %s limit", utils.FormatFileSize(maxSize))
	}
	if f.Size() == 0 {
		return apperr.New(apperr.CodeEmpty)
	}
	return nil
}

// GuessContentType maps a filename extension to a video type.
func GuessContentType(filename string) string {
	if ct, ok := extensionTypes[strings.ToLower(filepath.Ext(filename))]; ok {
		return ct
	}
	return "application/octet-stream"
}

func baseType(contentType string) string {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt
}

func resolveType(declared, name string) string {
	declared = strings.TrimSpace(declared)
	if declared == "" || declared == "application/octet-stream" {
		return GuessContentType(name)
	}
	return baseType(declared)
}

type headerFile struct {
	fh *multipart.FileHeader
}

// FromFileHeader adapts a multipart form file (the file picker path).
func FromFileHeader(fh *multipart.FileHeader) File {
	if fh == nil {
		return nil
	}
	return headerFile{fh: fh}
}

func (f headerFile) Name() string { return f.fh.Filename }
func (f headerFile) Size() int64  { return f.fh.Size }
func (f headerFile) ContentType() string {
	return resolveType(f.fh.Header.Get("Content-Type"), f.fh.Filename)
}
func (f headerFile) Open() (io.ReadCloser, error) { return f.fh.Open() }

type streamFile struct {
	name        string
	contentType string
	size        int64
	body        io.Reader
}

// FromStream adapts a raw request body (the drag-and-drop path). size is
// the declared length; the body is read at most once.
func FromStream(name, contentType string, size int64, body io.Reader) File {
	return &streamFile{
		name:        name,
		contentType: resolveType(contentType, name),
		size:        size,
		body:        body,
	}
}

func (f *streamFile) Name() string        { return f.name }
func (f *streamFile) Size() int64         { return f.size }
func (f *streamFile) ContentType() string { return f.contentType }
func (f *streamFile) Open() (io.ReadCloser, error) {
	return io.NopCloser(io.LimitReader(f.body, f.size)), nil
}
