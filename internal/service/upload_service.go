package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/acadex/acadex-api/internal/dto"
	"github.com/acadex/acadex-api/pkg/extract"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadNotText indicates the file carries no extractable text.
	ErrUploadNotText = errors.New("file type is not supported for evaluation")
	// ErrUploadNotFound indicates no stored upload matches the file id.
	ErrUploadNotFound = errors.New("uploaded file not found")
)

// StoredUpload is one upload as read back from the store, with its text
// already extracted.
type StoredUpload struct {
	FileID      string
	Filename    string
	FileType    string
	FileSize    int64
	StudentName string
	Text        string
	Raw         []byte
	UploadedAt  time.Time
}

// UploadService stores submission files until an evaluation request
// references them.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.UploadedFileResponse, error)
	Get(ctx context.Context, fileID string) (StoredUpload, error)
}

type uploadService struct {
	dir     string
	maxSize int64
	logger  zerolog.Logger
	tracer  trace.Tracer
}

// NewUploadService constructs a disk-backed upload service rooted at dir.
func NewUploadService(dir string, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		dir:     dir,
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		tracer:  otel.Tracer("github.com/acadex/acadex-api/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.UploadedFileResponse, error) {
	_, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	if file == nil {
		err := errors.New("file is required")
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadedFileResponse{}, err
	}

	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		span.RecordError(ErrUploadTooLarge)
		span.SetStatus(codes.Error, "payload too large")
		return dto.UploadedFileResponse{}, ErrUploadTooLarge
	}

	src, err := file.Open()
	if err != nil {
		span.RecordError(err)
		return dto.UploadedFileResponse{}, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = src.Close() }()

	data, err := io.ReadAll(io.LimitReader(src, s.maxSize+1))
	if err != nil {
		span.RecordError(err)
		return dto.UploadedFileResponse{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		span.RecordError(ErrUploadTooLarge)
		return dto.UploadedFileResponse{}, ErrUploadTooLarge
	}

	filename := sanitizeFilename(file.Filename)
	doc, err := extract.ReadDocument(filename, data)
	if err != nil {
		// Images are kept for slide-design evaluation even though they have
		// no extractable text.
		if !isImageFilename(filename) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "unsupported type")
			return dto.UploadedFileResponse{}, ErrUploadNotText
		}
		doc = extract.Document{Filename: filename, FileType: "image"}
	}

	fileID := uuid.NewString()
	if err := s.write(fileID, filename, data); err != nil {
		span.RecordError(err)
		return dto.UploadedFileResponse{}, err
	}

	s.logger.Info().
		Str("file_id", fileID).
		Str("filename", filename).
		Int("bytes", len(data)).
		Msg("upload stored")

	return dto.UploadedFileResponse{
		FileID:      fileID,
		Filename:    filename,
		FileType:    doc.FileType,
		FileSize:    int64(len(data)),
		StudentName: extract.StudentName(doc.Text),
	}, nil
}

func (s *uploadService) Get(ctx context.Context, fileID string) (StoredUpload, error) {
	_, span := s.tracer.Start(ctx, "upload.get")
	defer span.End()
	span.SetAttributes(attribute.String("upload.file_id", fileID))

	if strings.ContainsAny(fileID, "/\\.") {
		return StoredUpload{}, ErrUploadNotFound
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return StoredUpload{}, ErrUploadNotFound
		}
		span.RecordError(err)
		return StoredUpload{}, fmt.Errorf("read upload dir: %w", err)
	}
	if len(entries) == 0 {
		return StoredUpload{}, ErrUploadNotFound
	}

	filename := entries[0].Name()
	path := filepath.Join(s.dir, fileID, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		span.RecordError(err)
		return StoredUpload{}, fmt.Errorf("read upload: %w", err)
	}

	stored := StoredUpload{
		FileID:   fileID,
		Filename: filename,
		FileSize: int64(len(data)),
		Raw:      data,
	}
	if info, err := entries[0].Info(); err == nil {
		stored.UploadedAt = info.ModTime()
	}

	doc, err := extract.ReadDocument(filename, data)
	if err != nil {
		if !isImageFilename(filename) {
			return StoredUpload{}, ErrUploadNotText
		}
		stored.FileType = "image"
		return stored, nil
	}

	stored.FileType = doc.FileType
	stored.Text = doc.Text
	stored.StudentName = extract.StudentName(doc.Text)
	return stored, nil
}

func (s *uploadService) write(fileID, filename string, data []byte) error {
	dir := filepath.Join(s.dir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("write upload: %w", err)
	}
	return nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "..", "")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "upload.txt"
	}
	return name
}

func isImageFilename(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg", ".webp":
		return true
	default:
		return false
	}
}
