package service

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-roster-api/internal/observability"
)

// Landing routes chosen by the redirect controller.
const (
	DestinationLogin     = "/login"
	DestinationDashboard = "/dashboard"
	studentRoutePrefix   = "/students/"
)

// Navigation is a routing decision for one session event.
type Navigation struct {
	Destination string
	Reason      string
	StudentID   string
}

// Navigator delivers a navigation to the client.
type Navigator func(ctx context.Context, nav Navigation) error

// IdentityResolver maps a signed-in identity to its principal.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, identityID string) (LoginResult, error)
}

// RedirectController turns session events into navigations. One controller belongs to one session
// stream; while a navigation is being resolved or delivered every other event is dropped.
type RedirectController struct {
	sessionID string
	resolver  IdentityResolver
	sessions  SessionService
	navigate  Navigator
	logger    zerolog.Logger

	inFlight atomic.Bool
	last     atomic.Pointer[Navigation]
}

// NewRedirectController constructs a controller for a single session stream.
func NewRedirectController(sessionID string, resolver IdentityResolver, sessions SessionService, navigate Navigator, logger zerolog.Logger) *RedirectController {
	return &RedirectController{
		sessionID: sessionID,
		resolver:  resolver,
		sessions:  sessions,
		navigate:  navigate,
		logger:    logger.With().Str("component", "redirect_controller").Str("session_id", sessionID).Logger(),
	}
}

// Handle resolves and delivers the navigation for event. It reports false when the event was dropped
// because another navigation was in flight or because the destination did not change.
func (c *RedirectController) Handle(ctx context.Context, event SessionEvent) (bool, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		observability.Redirects().WithLabelValues("dropped").Inc()
		return false, nil
	}
	defer c.inFlight.Store(false)

	nav, err := c.resolve(ctx, event)
	if err != nil {
		return false, err
	}

	if last := c.last.Load(); last != nil && *last == nav {
		return false, nil
	}

	if err := c.navigate(ctx, nav); err != nil {
		return false, err
	}
	c.last.Store(&nav)

	observability.Redirects().WithLabelValues(metricDestination(nav)).Inc()
	return true, nil
}

func (c *RedirectController) resolve(ctx context.Context, event SessionEvent) (Navigation, error) {
	if event.Identity == nil {
		return Navigation{Destination: DestinationLogin}, nil
	}

	result, err := c.resolver.ResolveIdentity(ctx, event.Identity.IdentityID)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrphanedIdentity),
			errors.Is(err, ErrAccountDeleted),
			errors.Is(err, ErrStudentRecordMissing),
			errors.Is(err, ErrAmbiguousStudentRecord):
			c.logger.Warn().Str("kind", AuthErrorKind(err)).Msg("signing out session with unusable profile")
			if signOutErr := c.sessions.SignOut(ctx, c.sessionID); signOutErr != nil {
				return Navigation{}, signOutErr
			}
			return Navigation{Destination: DestinationLogin, Reason: AuthErrorKind(err)}, nil
		default:
			return Navigation{}, err
		}
	}

	switch result.Kind {
	case PrincipalStudent:
		return Navigation{Destination: studentRoutePrefix + result.StudentID, StudentID: result.StudentID}, nil
	case PrincipalStaff:
		return Navigation{Destination: DestinationDashboard}, nil
	default:
		return Navigation{}, storeError("redirect.resolve", errors.New("unknown principal kind"))
	}
}

func metricDestination(nav Navigation) string {
	switch {
	case nav.StudentID != "":
		return "student"
	case nav.Destination == DestinationDashboard:
		return "dashboard"
	default:
		return "login"
	}
}
