package handler

import (
	"context"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/dto"
	"github.com/noah-isme/gema-roster-api/internal/middleware"
	"github.com/noah-isme/gema-roster-api/internal/service"
)

// SessionHandler streams session changes and the resulting navigations over a websocket.
type SessionHandler struct {
	sessions service.SessionService
	resolver service.IdentityResolver
	logger   zerolog.Logger
}

// NewSessionHandler constructs a session stream handler.
func NewSessionHandler(sessions service.SessionService, resolver service.IdentityResolver, logger zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		resolver: resolver,
		logger:   logger.With().Str("component", "session_handler").Logger(),
	}
}

// Register binds the websocket route under the provided router group.
func (h *SessionHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("request_ctx", requestContext(c))
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.stream))
}

// sessionConn serializes writes from the event loop and the redirect controller.
type sessionConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *sessionConn) write(payload interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (h *SessionHandler) stream(conn *websocket.Conn) {
	sessionID := strings.TrimSpace(conn.Query("session_id"))
	if sessionID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session_id required"))
		_ = conn.Close()
		return
	}

	base, _ := conn.Locals("request_ctx").(context.Context)
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	defer cancel()

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	if correlation := middleware.CorrelationIDFromContext(ctx); correlation != "" {
		logger = logger.With().Str("correlation_id", correlation).Logger()
	}

	events, stop, err := h.sessions.Subscribe(ctx, sessionID)
	if err != nil {
		logger.Error().Err(err).Msg("failed to subscribe to session")
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		_ = conn.Close()
		return
	}
	defer stop()

	out := &sessionConn{conn: conn}
	controller := service.NewRedirectController(sessionID, h.resolver, h.sessions, func(_ context.Context, nav service.Navigation) error {
		return out.write(dto.NavigationMessage{Type: "navigate", Destination: nav.Destination, Reason: nav.Reason})
	}, logger)

	// The client never sends anything meaningful; reading detects the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info().Msg("session stream connected")
	defer logger.Info().Msg("session stream disconnected")

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := out.write(sessionEventMessage(event)); err != nil {
				return
			}

			wg.Add(1)
			go func(event service.SessionEvent) {
				defer wg.Done()
				if _, err := controller.Handle(ctx, event); err != nil && ctx.Err() == nil {
					logger.Warn().Err(err).Msg("navigation not delivered")
				}
			}(event)
		}
	}
}

func sessionEventMessage(event service.SessionEvent) dto.SessionEventMessage {
	msg := dto.SessionEventMessage{
		Type:      string(event.Kind),
		SessionID: event.SessionID,
		SignedIn:  event.Identity != nil,
		At:        event.At,
	}
	if event.Identity != nil {
		msg.IdentityID = event.Identity.IdentityID
	}
	return msg
}
