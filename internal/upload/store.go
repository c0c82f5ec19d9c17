// Package upload stores media files shared in chats after checking their content
// against the declared kind.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"lan-chat/internal/models"
	"lan-chat/internal/repositories"
)

// ErrValidationFailed is returned when the file content does not match the declared kind.
var ErrValidationFailed = errors.New("upload validation failed")

// ErrUnknownKind is returned for kinds the server does not accept.
var ErrUnknownKind = errors.New("unknown upload kind")

// ErrTooLarge is returned when the file exceeds the configured limit.
var ErrTooLarge = errors.New("upload too large")

// Kind is the media category a file is uploaded as.
type Kind string

const (
	KindImage   Kind = "image"
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindGIF     Kind = "gif"
	KindSticker Kind = "sticker"
	KindFile    Kind = "file"
)

// ParseKind validates a kind from a URL segment.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(s)); k {
	case KindImage, KindVideo, KindAudio, KindGIF, KindSticker, KindFile:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Accepts reports whether a detected MIME type is allowed for the kind.
func (k Kind) Accepts(m *mimetype.MIME) bool {
	switch k {
	case KindImage:
		return hasTopLevel(m, "image")
	case KindSticker:
		return m.Is("image/webp") || m.Is("image/png") || m.Is("image/gif")
	case KindGIF:
		return m.Is("image/gif")
	case KindVideo:
		return hasTopLevel(m, "video")
	case KindAudio:
		// some recorders produce webm/ogg containers that sniff as video
		return hasTopLevel(m, "audio") || m.Is("video/webm") || m.Is("application/ogg")
	case KindFile:
		return !isExecutable(m)
	}
	return false
}

func hasTopLevel(m *mimetype.MIME, top string) bool {
	for ; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), top+"/") {
			return true
		}
	}
	return false
}

func isExecutable(m *mimetype.MIME) bool {
	return m.Is("application/x-executable") ||
		m.Is("application/vnd.microsoft.portable-executable") ||
		m.Is("application/x-mach-binary") ||
		m.Is("application/x-elf")
}

// Store writes validated files under a directory and records them.
type Store struct {
	dir      string
	baseURL  string
	maxBytes int64
	repo     repositories.AttachmentRepository
}

// NewStore constructs a Store. The directory is created if missing.
func NewStore(dir, baseURL string, maxBytes int64, repo repositories.AttachmentRepository) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, baseURL: strings.TrimSuffix(baseURL, "/"), maxBytes: maxBytes, repo: repo}, nil
}

// Dir returns the directory files are written to.
func (s *Store) Dir() string { return s.dir }

// Save sniffs the content, rejects mismatches and persists the file.
func (s *Store) Save(ctx context.Context, uploaderID string, kind Kind, originalName string, r io.ReadSeeker) (models.Attachment, error) {
	limited := io.LimitReader(r, s.maxBytes+1)
	mime, err := mimetype.DetectReader(limited)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("detect content type: %w", err)
	}
	if !kind.Accepts(mime) {
		return models.Attachment{}, fmt.Errorf("%w: %s is not a valid %s", ErrValidationFailed, mime.String(), kind)
	}

	name := uuid.NewString() + mime.Extension()
	sub := filepath.Join(s.dir, string(kind))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return models.Attachment{}, fmt.Errorf("create kind dir: %w", err)
	}
	dst := filepath.Join(sub, name)

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return models.Attachment{}, fmt.Errorf("rewind upload: %w", err)
	}
	size, err := s.write(dst, r)
	if err != nil {
		return models.Attachment{}, err
	}

	att, err := s.repo.Save(ctx, models.Attachment{
		UploaderID:   uploaderID,
		URL:          path.Join(s.baseURL, string(kind), name),
		OriginalName: filepath.Base(originalName),
		MimeType:     mime.String(),
		Size:         size,
	})
	if err != nil {
		_ = os.Remove(dst)
		return models.Attachment{}, err
	}
	return att, nil
}

func (s *Store) write(dst string, r io.Reader) (int64, error) {
	f, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("create file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, fmt.Errorf("write file: %w", err)
	}
	if n > s.maxBytes {
		_ = os.Remove(dst)
		return 0, ErrTooLarge
	}
	return n, nil
}
