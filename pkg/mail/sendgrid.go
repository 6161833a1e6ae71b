package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendGridConfig configures the SendGrid sender. Host is only overridden in tests.
type SendGridConfig struct {
	APIKey    string
	FromName  string
	FromEmail string
	AppName   string
	Host      string
}

// SendGridSender delivers mail through the SendGrid v3 API.
type SendGridSender struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
	logger     zerolog.Logger
}

// NewSendGridSender constructs a SendGrid backed sender.
func NewSendGridSender(cfg SendGridConfig, logger zerolog.Logger) (*SendGridSender, error) {
	if cfg.APIKey == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid api key and from email must be provided")
	}
	host := cfg.Host
	if host == "" {
		host = sendgridHost
	}
	prefix := ""
	if cfg.AppName != "" {
		prefix = "[" + cfg.AppName + "] "
	}

	return &SendGridSender{
		key:        cfg.APIKey,
		host:       host,
		from:       sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		subjPrefix: prefix,
		logger:     logger.With().Str("component", "sendgrid_sender").Logger(),
	}, nil
}

// Provider names the delivery backend.
func (s *SendGridSender) Provider() string {
	return "sendgrid"
}

// Send posts the message and fails on any non-2xx answer.
func (s *SendGridSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, sendgridEndpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("sending email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		s.logger.Error().Int("status", res.StatusCode).Str("body", res.Body).Msg("sendgrid rejected message")
		return fmt.Errorf("sending email: status %d", res.StatusCode)
	}

	return nil
}

func (s *SendGridSender) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.To.Name, msg.To.Address))

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.Text),
		sgmail.NewContent("text/html", msg.HTML),
	)
	return m
}

// NewSender picks the delivery backend by provider name: "sendgrid" or "log".
func NewSender(provider string, cfg SendGridConfig, logger zerolog.Logger) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "", "log":
		return NewLogSender(logger), nil
	case "sendgrid":
		return NewSendGridSender(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown mail provider %q", provider)
	}
}
