package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/observability"
	cloud "github.com/noah-isme/gema-roster-api/pkg/cloudinary"
)

var (
	// ErrUploadMissing indicates the multipart request carried no image.
	ErrUploadMissing = errors.New("no image uploaded")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the detected MIME type is not an image.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadsDisabled indicates no storage backend is configured.
	ErrUploadsDisabled = errors.New("uploads are not configured")
)

// StoredAsset is a file accepted by the storage backend.
type StoredAsset struct {
	URL      string
	PublicID string
}

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (StoredAsset, error)
}

// FileStorageFunc adapts a function to FileStorage.
type FileStorageFunc func(ctx context.Context, name string, reader io.Reader) (StoredAsset, error)

// Upload implements FileStorage.
func (f FileStorageFunc) Upload(ctx context.Context, name string, reader io.Reader) (StoredAsset, error) {
	return f(ctx, name, reader)
}

// CloudinaryStorage stores images through the Cloudinary client.
func CloudinaryStorage(uploader *cloud.Service) FileStorage {
	return FileStorageFunc(func(ctx context.Context, name string, reader io.Reader) (StoredAsset, error) {
		asset, err := uploader.Upload(ctx, name, reader)
		if err != nil {
			return StoredAsset{}, err
		}
		return StoredAsset{URL: asset.URL, PublicID: asset.PublicID}, nil
	})
}

// ImageUploadService validates images and pushes them to storage.
type ImageUploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (dto.RelayUploadResponse, error)
}

type imageUploadService struct {
	storage FileStorage
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewImageUploadService constructs an upload service. storage may be nil, in which case every upload
// fails with ErrUploadsDisabled.
func NewImageUploadService(storage FileStorage, maxSizeMB int, logger zerolog.Logger) ImageUploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 5
	}
	return &imageUploadService{
		storage: storage,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/gema-roster-api/internal/service/upload"),
	}
}

func (s *imageUploadService) Upload(ctx context.Context, file *multipart.FileHeader) (dto.RelayUploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.image", trace.WithAttributes(attribute.Int64("upload.max_bytes", s.maxSize)))
	defer span.End()

	switch {
	case s.storage == nil:
		return dto.RelayUploadResponse{}, s.reject(span, "disabled", ErrUploadsDisabled)
	case file == nil:
		return dto.RelayUploadResponse{}, s.reject(span, "missing", ErrUploadMissing)
	case file.Size > s.maxSize:
		return dto.RelayUploadResponse{}, s.reject(span, "too_large", ErrUploadTooLarge)
	}
	span.SetAttributes(
		attribute.String("upload.original_name", file.Filename),
		attribute.Int64("upload.request_size", file.Size),
	)

	content, err := s.readLimited(file)
	if err != nil {
		if errors.Is(err, ErrUploadTooLarge) {
			return dto.RelayUploadResponse{}, s.reject(span, "too_large", err)
		}
		return dto.RelayUploadResponse{}, s.reject(span, "unreadable", fmt.Errorf("read upload: %w", err))
	}

	detected := mimetype.Detect(content)
	if !strings.HasPrefix(detected.String(), "image/") {
		return dto.RelayUploadResponse{}, s.reject(span, "rejected_type", ErrUploadTypeNotAllowed)
	}
	mimeType, _, _ := strings.Cut(detected.String(), ";")
	span.SetAttributes(attribute.String("upload.detected_mime", mimeType))

	asset, err := s.storage.Upload(ctx, storedFileName(file.Filename, detected.Extension()), bytes.NewReader(content))
	if err != nil {
		return dto.RelayUploadResponse{}, s.reject(span, "storage_failed", err)
	}

	observability.UploadRequests().WithLabelValues("stored").Inc()
	span.SetStatus(codes.Ok, "")
	s.logger.Info().
		Str("public_id", asset.PublicID).
		Str("mime", mimeType).
		Int("size", len(content)).
		Msg("image stored")

	return dto.RelayUploadResponse{
		Success:  true,
		URL:      asset.URL,
		PublicID: asset.PublicID,
		MimeType: mimeType,
		Size:     int64(len(content)),
	}, nil
}

// readLimited reads at most maxSize bytes; the declared size of a multipart part is not trusted.
func (s *imageUploadService) readLimited(file *multipart.FileHeader) ([]byte, error) {
	handle, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	content, err := io.ReadAll(io.LimitReader(handle, s.maxSize+1))
	if err != nil {
		return nil, err
	}
	if int64(len(content)) > s.maxSize {
		return nil, ErrUploadTooLarge
	}
	return content, nil
}

func (s *imageUploadService) reject(span trace.Span, result string, err error) error {
	observability.UploadRequests().WithLabelValues(result).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, result)
	if result == "storage_failed" || result == "unreadable" {
		s.logger.Error().Err(err).Str("result", result).Msg("image upload failed")
	}
	return err
}

// storedFileName keeps the caller's stem but always takes the extension from the detected content.
func storedFileName(original, detectedExt string) string {
	stem := strings.TrimSuffix(path.Base(original), path.Ext(original))
	fields := strings.FieldsFunc(strings.ToLower(stem), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})
	if len(fields) == 0 {
		return "upload-" + uuid.NewString()[:8] + detectedExt
	}
	return strings.Join(fields, "-") + detectedExt
}
