package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// DefaultMaxBytes — предельный размер загружаемого изображения.
const DefaultMaxBytes int64 = 5 << 20

var (
	// ErrEmptyFile — тело загрузки пустое.
	ErrEmptyFile = errors.New("uploaded file is empty")
	// ErrTooLarge — файл превышает лимит.
	ErrTooLarge = errors.New("uploaded file is too large")
	// ErrUnsupportedType — тип содержимого не входит в список разрешённых.
	ErrUnsupportedType = errors.New("unsupported file type")
)

// allowed сопоставляет разрешённые MIME-типы с расширением файла.
var allowed = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// File описывает сохранённый файл.
type File struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// Option настраивает сервис загрузок.
type Option func(*Service)

// WithMaxBytes задаёт лимит размера файла.
func WithMaxBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithPublicPrefix задаёт префикс публичного URL.
func WithPublicPrefix(prefix string) Option {
	return func(s *Service) {
		prefix = strings.TrimSpace(prefix)
		if prefix != "" {
			s.publicPrefix = "/" + strings.Trim(prefix, "/")
		}
	}
}

// WithLogger задаёт логгер.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service сохраняет изображения товаров в локальный каталог.
type Service struct {
	dir          string
	publicPrefix string
	maxBytes     int64
	logger       *log.Entry
}

// NewService создаёт сервис; каталог создаётся при первой записи.
func NewService(dir string, opts ...Option) *Service {
	s := &Service{
		dir:          dir,
		publicPrefix: "/uploads",
		maxBytes:     DefaultMaxBytes,
		logger:       log.WithField("component", "upload"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir возвращает каталог хранения.
func (s *Service) Dir() string {
	return s.dir
}

// PublicPrefix возвращает префикс, под которым файлы раздаются по HTTP.
func (s *Service) PublicPrefix() string {
	return s.publicPrefix
}

// MaxBytes возвращает лимит размера файла.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Save читает файл целиком (не больше лимита), определяет тип по содержимому
// и сохраняет его под случайным именем. Исходное имя файла только логируется.
func (s *Service) Save(ctx context.Context, filename string, r io.Reader) (File, error) {
	if err := ctx.Err(); err != nil {
		return File{}, err
	}

	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return File{}, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return File{}, ErrEmptyFile
	}
	if int64(len(data)) > s.maxBytes {
		return File{}, ErrTooLarge
	}

	mtype := mimetype.Detect(data)
	contentType := mtype.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := allowed[contentType]
	if !ok {
		s.logger.WithFields(log.Fields{
			"filename":     filename,
			"content_type": contentType,
		}).Warn("upload rejected")
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedType, contentType)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return File{}, fmt.Errorf("create upload dir: %w", err)
	}

	name := uuid.NewString() + ext
	path := filepath.Join(s.dir, name)
	if err := writeFile(path, data); err != nil {
		return File{}, err
	}

	file := File{
		Name:        name,
		URL:         s.publicPrefix + "/" + name,
		ContentType: contentType,
		Size:        int64(len(data)),
	}
	s.logger.WithFields(log.Fields{
		"filename":     filename,
		"stored_as":    name,
		"content_type": contentType,
		"size":         file.Size,
	}).Info("file uploaded")
	return file, nil
}

func writeFile(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close upload file: %w", err)
	}
	return nil
}
