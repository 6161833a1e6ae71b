package mail

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// LogSender writes messages to the log instead of delivering them. Used in development and tests.
type LogSender struct {
	logger zerolog.Logger

	mu   sync.Mutex
	sent []Message
}

// NewLogSender constructs a sender that only logs.
func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "log_sender").Logger()}
}

// Provider names the delivery backend.
func (s *LogSender) Provider() string {
	return "log"
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.sent = append(s.sent, msg)
	s.mu.Unlock()

	s.logger.Info().Str("to", msg.To.Address).Str("subject", msg.Subject).Msg("email suppressed, logging instead")
	return nil
}

// Sent returns every message passed to Send.
func (s *LogSender) Sent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.sent...)
}
