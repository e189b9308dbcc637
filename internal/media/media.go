// Package media validates banner uploads and stores them under generated names.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Togather-Foundation/eventdesk/internal/metrics"
	"github.com/gabriel-vasile/mimetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Namespace is the folder (or object prefix) banners are stored under.
const Namespace = "banners"

// MaxBannerBytes is the upload size limit.
const MaxBannerBytes = 5 << 20

const (
	nameAlphabet = "0123456789abcdef"
	nameLength   = 32
)

var (
	ErrUnsupportedType = errors.New("only jpeg, png and gif images are allowed")
	ErrTooLarge        = errors.New("banner exceeds the 5 MiB limit")
	ErrNotFound        = errors.New("banner not found")
	ErrExists          = errors.New("banner name already in use")
)

var declaredTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

// sniffedExtensions maps detected content types to their canonical extension.
var sniffedExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// extensionTypes is the content type each accepted filename extension implies.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
}

var storedName = regexp.MustCompile(`^[0-9a-f]{32}\.(jpg|jpeg|png|gif)$`)

// ValidName reports whether name could have been produced by Ingest.
func ValidName(name string) bool {
	return storedName.MatchString(name)
}

// Info describes a stored banner.
type Info struct {
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Store persists banner bytes. Put must never overwrite an existing name.
type Store interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) error
	Open(ctx context.Context, name string) (io.ReadCloser, Info, error)
	Delete(ctx context.Context, name string) error
}

// Upload is a file part as received from the client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

type Ingestor struct {
	store    Store
	maxBytes int64
	logger   zerolog.Logger
}

func NewIngestor(store Store, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		store:    store,
		maxBytes: MaxBannerBytes,
		logger:   logger.With().Str("component", "media").Logger(),
	}
}

func (i *Ingestor) Store() Store {
	return i.store
}

// Ingest validates the upload and stores it, returning the generated name.
func (i *Ingestor) Ingest(ctx context.Context, up Upload) (string, error) {
	name, size, err := i.ingest(ctx, up)
	metrics.MediaUploads.WithLabelValues(uploadResult(err)).Inc()
	if err == nil {
		metrics.MediaUploadBytes.Observe(float64(size))
	}
	return name, err
}

func (i *Ingestor) ingest(ctx context.Context, up Upload) (string, int, error) {
	declared := strings.ToLower(strings.TrimSpace(up.ContentType))
	if base, _, ok := strings.Cut(declared, ";"); ok {
		declared = strings.TrimSpace(base)
	}
	if !declaredTypes[declared] {
		return "", 0, ErrUnsupportedType
	}

	data, err := io.ReadAll(io.LimitReader(up.Body, i.maxBytes+1))
	if err != nil {
		return "", 0, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > i.maxBytes {
		return "", 0, ErrTooLarge
	}

	detected := mimetype.Detect(data)
	sniffedExt, ok := sniffedExtensions[detected.String()]
	if !ok {
		i.logger.Warn().Str("declared", declared).Str("detected", detected.String()).Msg("upload content does not match an allowed image type")
		return "", 0, ErrUnsupportedType
	}

	// The client's extension survives only when it agrees with the content.
	ext := strings.ToLower(filepath.Ext(up.Filename))
	if extensionTypes[ext] != detected.String() {
		ext = sniffedExt
	}

	for attempt := 0; attempt < 3; attempt++ {
		id, err := gonanoid.Generate(nameAlphabet, nameLength)
		if err != nil {
			return "", 0, fmt.Errorf("generate name: %w", err)
		}
		name := id + ext
		err = i.store.Put(ctx, name, bytes.NewReader(data), int64(len(data)), detected.String())
		if errors.Is(err, ErrExists) {
			continue
		}
		if err != nil {
			return "", 0, fmt.Errorf("store banner: %w", err)
		}
		i.logger.Debug().Str("name", name).Int("bytes", len(data)).Msg("banner stored")
		return name, len(data), nil
	}
	return "", 0, ErrExists
}

func uploadResult(err error) string {
	switch {
	case err == nil:
		return "stored"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported_type"
	case errors.Is(err, ErrTooLarge):
		return "too_large"
	default:
		return "error"
	}
}
