package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/gema-roster-api/internal/observability"
)

const sessionBufferSize = 16

// SessionEventKind names why a session event was emitted.
type SessionEventKind string

const (
	SessionEventCurrent SessionEventKind = "current"
	SessionEventSignIn  SessionEventKind = "sign_in"
	SessionEventSignOut SessionEventKind = "sign_out"
)

// SessionIdentity is the authenticated identity bound to a session.
type SessionIdentity struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email"`
}

// SessionEvent carries the identity of a session after a change. Identity is nil when signed out.
type SessionEvent struct {
	SessionID string           `json:"session_id"`
	Kind      SessionEventKind `json:"kind"`
	Identity  *SessionIdentity `json:"identity,omitempty"`
	At        time.Time        `json:"at"`
}

// SessionService tracks the current identity of each session and pushes every change to subscribers.
type SessionService interface {
	SignIn(ctx context.Context, sessionID string, identity SessionIdentity) error
	SignOut(ctx context.Context, sessionID string) error
	Current(ctx context.Context, sessionID string) (*SessionIdentity, error)
	Subscribe(ctx context.Context, sessionID string) (<-chan SessionEvent, func(), error)
	Start(ctx context.Context)
}

type sessionService struct {
	redis        *redis.Client
	keyPrefix    string
	redisChannel string
	nats         *nats.Conn
	natsSubject  string
	ttl          time.Duration
	logger       zerolog.Logger
	tracer       trace.Tracer
	broker       *sessionBroker
	nodeID       string

	mu     sync.RWMutex
	memory map[string]SessionIdentity
}

type sessionEnvelope struct {
	Source string       `json:"source"`
	Event  SessionEvent `json:"event"`
}

// NewSessionService constructs a session service. When redisClient is nil session state is held in memory
// and only subscribers of this node are notified.
func NewSessionService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, ttl time.Duration, logger zerolog.Logger) SessionService {
	if channelBase == "" {
		channelBase = "roster"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &sessionService{
		redis:        redisClient,
		keyPrefix:    channelBase + ":session:",
		redisChannel: channelBase + ":sessions",
		nats:         natsConn,
		natsSubject:  strings.ReplaceAll(channelBase, ":", ".") + ".sessions",
		ttl:          ttl,
		logger:       logger.With().Str("component", "session_service").Logger(),
		tracer:       otel.Tracer("github.com/noah-isme/gema-roster-api/internal/service/session"),
		broker:       &sessionBroker{subscribers: make(map[string]map[*sessionSubscriber]struct{})},
		nodeID:       uuid.NewString(),
		memory:       make(map[string]SessionIdentity),
	}
}

func (s *sessionService) Start(ctx context.Context) {
	if s.redis != nil {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil {
		go s.consumeNATS(ctx)
	}
}

func (s *sessionService) SignIn(ctx context.Context, sessionID string, identity SessionIdentity) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is required")
	}

	ctx, span := s.tracer.Start(ctx, "session.sign_in", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := s.store(ctx, sessionID, &identity); err != nil {
		span.RecordError(err)
		return storeError("session.sign_in", err)
	}

	s.emit(ctx, SessionEvent{SessionID: sessionID, Kind: SessionEventSignIn, Identity: &identity, At: time.Now().UTC()})
	return nil
}

func (s *sessionService) SignOut(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return nil
	}

	ctx, span := s.tracer.Start(ctx, "session.sign_out", trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	if err := s.store(ctx, sessionID, nil); err != nil {
		span.RecordError(err)
		return storeError("session.sign_out", err)
	}

	s.emit(ctx, SessionEvent{SessionID: sessionID, Kind: SessionEventSignOut, At: time.Now().UTC()})
	return nil
}

func (s *sessionService) Current(ctx context.Context, sessionID string) (*SessionIdentity, error) {
	if s.redis == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		identity, ok := s.memory[sessionID]
		if !ok {
			return nil, nil
		}
		return &identity, nil
	}

	raw, err := s.redis.Get(ctx, s.keyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, storeError("session.current", err)
	}

	var identity SessionIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return nil, storeError("session.current", err)
	}
	return &identity, nil
}

// Subscribe registers a subscriber and delivers the current identity first. Changes that race with
// the initial read are queued behind it. After cancel returns nothing more is sent on the channel.
func (s *sessionService) Subscribe(ctx context.Context, sessionID string) (<-chan SessionEvent, func(), error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, nil, errors.New("session id is required")
	}

	sub := &sessionSubscriber{ch: make(chan SessionEvent, sessionBufferSize), done: make(chan struct{})}
	s.broker.subscribe(sessionID, sub)

	identity, err := s.Current(ctx, sessionID)
	if err != nil {
		s.broker.unsubscribe(sessionID, sub)
		return nil, nil, err
	}

	sub.start(SessionEvent{SessionID: sessionID, Kind: SessionEventCurrent, Identity: identity, At: time.Now().UTC()})
	observability.SessionStreamsActive().Inc()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.broker.unsubscribe(sessionID, sub)
			observability.SessionStreamsActive().Dec()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-sub.done:
		}
	}()

	return sub.ch, cancel, nil
}

func (s *sessionService) store(ctx context.Context, sessionID string, identity *SessionIdentity) error {
	if s.redis == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if identity == nil {
			delete(s.memory, sessionID)
		} else {
			s.memory[sessionID] = *identity
		}
		return nil
	}

	if identity == nil {
		return s.redis.Del(ctx, s.keyPrefix+sessionID).Err()
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, s.keyPrefix+sessionID, payload, s.ttl).Err()
}

func (s *sessionService) emit(ctx context.Context, event SessionEvent) {
	observability.SessionEvents().WithLabelValues(string(event.Kind), "local").Inc()
	s.broker.broadcast(event)

	if err := s.publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to publish session event")
	}
}

func (s *sessionService) publish(ctx context.Context, event SessionEvent) error {
	if s.redis == nil && s.nats == nil {
		return nil
	}

	payload, err := json.Marshal(sessionEnvelope{Source: s.nodeID, Event: event})
	if err != nil {
		return err
	}

	if s.redis != nil {
		if err := s.redis.Publish(ctx, s.redisChannel, payload).Err(); err != nil {
			return err
		}
	}
	if s.nats != nil {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}
	return nil
}

func (s *sessionService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisChannel)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			s.logger.Error().Err(err).Msg("session redis subscription closed")
			return
		}
		s.handleEnvelope([]byte(msg.Payload))
	}
}

func (s *sessionService) consumeNATS(ctx context.Context) {
	// Every node needs every event, so this is a plain subscription rather than a queue group.
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEnvelope(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats session subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain session nats subscription")
		}
	}()
}

func (s *sessionService) handleEnvelope(payload []byte) {
	var envelope sessionEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.logger.Warn().Err(err).Msg("invalid session event payload")
		return
	}
	if envelope.Source == s.nodeID || envelope.Event.SessionID == "" {
		return
	}

	if s.redis == nil {
		// Without shared state the remote node is the only source of truth for the change.
		_ = s.store(context.Background(), envelope.Event.SessionID, envelope.Event.Identity)
	}

	observability.SessionEvents().WithLabelValues(string(envelope.Event.Kind), "remote").Inc()
	s.broker.broadcast(envelope.Event)
}

type sessionBroker struct {
	mu          sync.RWMutex
	subscribers map[string]map[*sessionSubscriber]struct{}
}

func (b *sessionBroker) subscribe(sessionID string, sub *sessionSubscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscribers[sessionID]; !exists {
		b.subscribers[sessionID] = make(map[*sessionSubscriber]struct{})
	}
	b.subscribers[sessionID][sub] = struct{}{}
}

func (b *sessionBroker) unsubscribe(sessionID string, sub *sessionSubscriber) {
	b.mu.Lock()
	if subscribers, ok := b.subscribers[sessionID]; ok {
		delete(subscribers, sub)
		if len(subscribers) == 0 {
			delete(b.subscribers, sessionID)
		}
	}
	b.mu.Unlock()

	sub.close()
}

func (b *sessionBroker) broadcast(event SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers[event.SessionID] {
		sub.send(event)
	}
}

// sessionSubscriber holds events back until the initial event has been delivered.
type sessionSubscriber struct {
	mu      sync.Mutex
	ch      chan SessionEvent
	done    chan struct{}
	started bool
	closed  bool
	pending []SessionEvent
}

func (s *sessionSubscriber) start(initial SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.offer(initial)
	for _, event := range s.pending {
		s.offer(event)
	}
	s.pending = nil
	s.started = true
}

func (s *sessionSubscriber) send(event SessionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if !s.started {
		s.pending = append(s.pending, event)
		return
	}
	s.offer(event)
}

// offer drops the event when the subscriber is not keeping up.
func (s *sessionSubscriber) offer(event SessionEvent) {
	select {
	case s.ch <- event:
	default:
	}
}

func (s *sessionSubscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
	close(s.done)
}
