package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const maxSlugLength = 48

// Config contains credentials required to talk to Cloudinary.
type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	Tags      []string
}

// Asset describes an uploaded image.
type Asset struct {
	URL      string
	PublicID string
	Bytes    int
}

// Service pushes roster images (student photos, relay uploads) to Cloudinary.
type Service struct {
	client *cloudinary.Cloudinary
	folder string
	tags   api.CldAPIArray
	logger zerolog.Logger
}

// New constructs a Cloudinary service instance.
func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	var missing []string
	if cfg.CloudName == "" {
		missing = append(missing, "cloud name")
	}
	if cfg.APIKey == "" {
		missing = append(missing, "api key")
	}
	if cfg.APISecret == "" {
		missing = append(missing, "api secret")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("cloudinary %s must be provided", strings.Join(missing, ", "))
	}

	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cloudinary: %w", err)
	}

	tags := append(api.CldAPIArray{"gema-roster"}, cfg.Tags...)

	return &Service{
		client: cld,
		folder: strings.Trim(cfg.Folder, "/"),
		tags:   tags,
		logger: logger.With().Str("component", "cloudinary").Logger(),
	}, nil
}

// Upload stores the image under a fresh public id derived from name.
func (s *Service) Upload(ctx context.Context, name string, reader io.Reader) (Asset, error) {
	overwrite := false
	params := uploader.UploadParams{
		Folder:       s.folder,
		PublicID:     publicIDFor(name),
		ResourceType: "image",
		Tags:         s.tags,
		Overwrite:    &overwrite,
	}

	result, err := s.client.Upload.Upload(ctx, reader, params)
	if err != nil {
		return Asset{}, fmt.Errorf("cloudinary upload: %w", err)
	}
	if result == nil {
		return Asset{}, errors.New("cloudinary upload: empty result")
	}
	if msg := result.Error.Message; msg != "" {
		return Asset{}, fmt.Errorf("cloudinary upload rejected: %s", msg)
	}

	s.logger.Debug().
		Str("public_id", result.PublicID).
		Int("bytes", result.Bytes).
		Msg("image stored")

	return Asset{URL: result.SecureURL, PublicID: result.PublicID, Bytes: result.Bytes}, nil
}

// publicIDFor turns an upload filename into a lowercase slug with a random suffix.
func publicIDFor(name string) string {
	stem := strings.TrimSuffix(path.Base(name), path.Ext(name))

	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(stem) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			lastDash = false
		case !lastDash:
			b.WriteByte('-')
			lastDash = true
		}
		if b.Len() >= maxSlugLength {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "image"
	}
	return slug + "-" + uuid.NewString()[:8]
}
