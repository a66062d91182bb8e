// Package upload stores uploaded files on disk grouped by MIME category and
// produces the attachment descriptors that ride along with chat messages.
package upload

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avdeenkov/roomcast/internal/chat"
)

const maxFilenameLen = 200

// Service writes uploads under dir/<category>/ and serves them back at
// /uploads/<category>/<filename>.
type Service struct {
	dir string
}

func New(dir string) *Service {
	return &Service{dir: dir}
}

// CategoryDir maps a MIME type onto the storage subdirectory.
func CategoryDir(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "images"
	case strings.HasPrefix(mimeType, "video/"):
		return "videos"
	case strings.HasPrefix(mimeType, "audio/"):
		return "music"
	default:
		return "files"
	}
}

// Save streams the payload to disk and returns its attachment descriptor.
// The stored name is prefixed with the upload time and a random token so
// concurrent uploads of the same file never collide.
func (s *Service) Save(originalName, mimeType string, r io.Reader) (*chat.Attachment, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	category := CategoryDir(mimeType)
	dir := filepath.Join(s.dir, category)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}

	name := sanitizeFilename(originalName)
	stored := fmt.Sprintf("%d-%s-%s", time.Now().UnixMilli(), uuid.NewString()[:8], name)

	f, err := os.Create(filepath.Join(dir, stored))
	if err != nil {
		return nil, fmt.Errorf("create upload file: %w", err)
	}
	defer f.Close()

	size, err := io.Copy(f, r)
	if err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write upload: %w", err)
	}

	return &chat.Attachment{
		Filename:     stored,
		OriginalName: name,
		MimeType:     mimeType,
		SizeBytes:    size,
		URL:          "/uploads/" + category + "/" + stored,
	}, nil
}

// sanitizeFilename strips directory components and traversal sequences so
// client-supplied names cannot escape the upload directory.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	if name == "" || name == "." || strings.Contains(name, "..") {
		name = "file"
	}
	if len(name) > maxFilenameLen {
		name = name[len(name)-maxFilenameLen:]
	}
	return name
}
