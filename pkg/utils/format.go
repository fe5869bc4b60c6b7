package utils

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// FormatFileSize renders bytes with binary multiples, e.g. "1.5 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64) + " " + sizeUnits[i]
}

// FormatDuration renders seconds as m:ss or h:mm:ss.
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return "0:00"
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

var videoExtensions = map[string]string{
	"video/mp4":       "mp4",
	"video/webm":      "webm",
	"video/ogg":       "ogv",
	"video/avi":       "avi",
	"video/mov":       "mov",
	"video/quicktime": "mov",
	"video/wmv":       "wmv",
	"video/flv":       "flv",
	"video/mkv":       "mkv",
}

// VideoExtension maps a container MIME type (parameters ignored) to a file
// extension, or "unknown".
func VideoExtension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if ext, ok := videoExtensions[base]; ok {
		return ext
	}
	return "unknown"
}
