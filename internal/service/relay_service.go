package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/observability"
	"github.com/noah-isme/gema-roster-api/pkg/issuer"
	"github.com/noah-isme/gema-roster-api/pkg/mail"
)

const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

// RelayResult is the outcome of a relay delivery.
type RelayResult struct {
	Code       string
	IdentityID string
}

// RelayService generates verification codes, provisions identities and mails the code.
type RelayService interface {
	SendVerificationCode(ctx context.Context, req dto.SendVerificationCodeRequest) (RelayResult, error)
	Status() dto.RelayStatusResponse
}

type relayService struct {
	identities IdentityStore
	sender     mail.Sender
	uploads    bool
	appName    string
	validator  *validator.Validate
	logger     zerolog.Logger
	tracer     trace.Tracer
	generate   func() (string, error)
}

// NewRelayService constructs the relay service. identities may be nil when the relay runs without a database.
func NewRelayService(identities IdentityStore, sender mail.Sender, uploads bool, appName string, validate *validator.Validate, logger zerolog.Logger) RelayService {
	return &relayService{
		identities: identities,
		sender:     sender,
		uploads:    uploads,
		appName:    appName,
		validator:  validate,
		logger:     logger.With().Str("component", "relay_service").Logger(),
		tracer:     otel.Tracer("github.com/noah-isme/gema-roster-api/internal/service/relay"),
		generate:   GenerateVerificationCode,
	}
}

// GenerateVerificationCode returns a random code of six characters from [A-Z0-9].
func GenerateVerificationCode() (string, error) {
	limit := big.NewInt(int64(len(codeAlphabet)))
	var builder strings.Builder
	builder.Grow(codeLength)
	for i := 0; i < codeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		builder.WriteByte(codeAlphabet[n.Int64()])
	}
	return builder.String(), nil
}

func (s *relayService) SendVerificationCode(ctx context.Context, req dto.SendVerificationCodeRequest) (RelayResult, error) {
	ctx, span := s.tracer.Start(ctx, "relay.send_verification_code")
	defer span.End()

	req.StudentEmail = strings.ToLower(strings.TrimSpace(req.StudentEmail))
	req.StudentName = strings.TrimSpace(req.StudentName)
	if err := s.validator.Struct(req); err != nil {
		observability.RelayDeliveries().WithLabelValues("invalid").Inc()
		span.SetStatus(codes.Error, "validation failed")
		return RelayResult{}, err
	}

	logger := s.logger.With().Str("email", maskEmail(req.StudentEmail)).Logger()

	code, err := s.generate()
	if err != nil {
		span.RecordError(err)
		return RelayResult{}, fmt.Errorf("generate code: %w", err)
	}

	msg, err := mail.VerificationMessage(s.appName, req.StudentEmail, req.StudentName, code)
	if err != nil {
		span.RecordError(err)
		return RelayResult{}, err
	}

	if err := s.sender.Send(ctx, msg); err != nil {
		observability.RelayDeliveries().WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "delivery failed")
		logger.Error().Err(err).Str("provider", s.sender.Provider()).Msg("verification email not delivered")
		return RelayResult{}, fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	result := RelayResult{Code: code, IdentityID: s.provision(ctx, logger, req.StudentEmail, code)}

	observability.RelayDeliveries().WithLabelValues("sent").Inc()
	span.SetStatus(codes.Ok, "delivered")
	logger.Info().Bool("identity_provisioned", result.IdentityID != "").Msg("verification email delivered")
	return result, nil
}

// provision creates the identity or overwrites its credential with the new code. Failures are logged
// and the delivery still counts as successful.
func (s *relayService) provision(ctx context.Context, logger zerolog.Logger, email, code string) string {
	if s.identities == nil {
		return ""
	}

	identity, err := s.identities.Upsert(ctx, email, code)
	if err != nil {
		switch {
		case errors.Is(err, ErrStaffCredential):
			logger.Info().Msg("identity belongs to a staff account, provisioning skipped")
		case !errors.Is(err, context.Canceled):
			logger.Warn().Err(err).Msg("identity provisioning failed")
		}
		return ""
	}
	return identity.ID
}

func (s *relayService) Status() dto.RelayStatusResponse {
	provisioning := s.identities != nil
	message := "identity provisioning disabled, codes are emailed only"
	if provisioning {
		message = "identity provisioning enabled"
	}
	return dto.RelayStatusResponse{
		Success:              true,
		Message:              message,
		IdentityProvisioning: provisioning,
		MailProvider:         s.sender.Provider(),
		Uploads:              s.uploads,
	}
}

// RelayIssuer runs the relay in process, for deployments without a separate relay.
type RelayIssuer struct {
	Relay RelayService
}

// Issue implements CodeIssuer.
func (i RelayIssuer) Issue(ctx context.Context, email, name string) (issuer.Result, error) {
	result, err := i.Relay.SendVerificationCode(ctx, dto.SendVerificationCodeRequest{StudentEmail: email, StudentName: name})
	if err != nil {
		return issuer.Result{}, err
	}
	return issuer.Result{Code: result.Code, IdentityID: result.IdentityID}, nil
}
