package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func nextEvent(t *testing.T, events <-chan SessionEvent) SessionEvent {
	t.Helper()
	select {
	case event, ok := <-events:
		require.True(t, ok, "session stream closed")
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for session event")
		return SessionEvent{}
	}
}

func TestSessionSubscribeDeliversCurrentStateFirst(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	require.NoError(t, sessions.SignIn(ctx, "s1", SessionIdentity{IdentityID: "id-1", Email: "minh@x.com"}))

	events, cancel, err := sessions.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer cancel()

	initial := nextEvent(t, events)
	require.Equal(t, SessionEventCurrent, initial.Kind)
	require.NotNil(t, initial.Identity)
	require.Equal(t, "id-1", initial.Identity.IdentityID)

	require.NoError(t, sessions.SignOut(ctx, "s1"))
	signedOut := nextEvent(t, events)
	require.Equal(t, SessionEventSignOut, signedOut.Kind)
	require.Nil(t, signedOut.Identity)
}

func TestSessionSubscribeSignedOutInitialState(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	events, cancel, err := sessions.Subscribe(ctx, "fresh")
	require.NoError(t, err)
	defer cancel()

	initial := nextEvent(t, events)
	require.Equal(t, SessionEventCurrent, initial.Kind)
	require.Nil(t, initial.Identity)

	require.NoError(t, sessions.SignIn(ctx, "fresh", SessionIdentity{IdentityID: "id-2", Email: "lan@x.com"}))
	signedIn := nextEvent(t, events)
	require.Equal(t, SessionEventSignIn, signedIn.Kind)
	require.Equal(t, "id-2", signedIn.Identity.IdentityID)
}

func TestSessionEventsAreScopedToTheirSession(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	events, cancel, err := sessions.Subscribe(ctx, "a")
	require.NoError(t, err)
	defer cancel()
	nextEvent(t, events)

	require.NoError(t, sessions.SignIn(ctx, "b", SessionIdentity{IdentityID: "id-b"}))
	require.NoError(t, sessions.SignIn(ctx, "a", SessionIdentity{IdentityID: "id-a"}))

	event := nextEvent(t, events)
	require.Equal(t, "a", event.SessionID)
	require.Equal(t, "id-a", event.Identity.IdentityID)
}

func TestSessionCancelStopsDelivery(t *testing.T) {
	ctx := context.Background()
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	events, cancel, err := sessions.Subscribe(ctx, "s1")
	require.NoError(t, err)
	nextEvent(t, events)

	cancel()
	cancel()
	require.NoError(t, sessions.SignIn(ctx, "s1", SessionIdentity{IdentityID: "id-1"}))

	_, ok := <-events
	require.False(t, ok)
}

func TestSessionContextCancellationClosesStream(t *testing.T) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	events, cancel, err := sessions.Subscribe(ctx, "s1")
	require.NoError(t, err)
	defer cancel()
	nextEvent(t, events)

	cancelCtx()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionRequiresID(t *testing.T) {
	sessions := NewSessionService(nil, "", nil, time.Hour, testLogger())

	_, _, err := sessions.Subscribe(context.Background(), " ")
	require.Error(t, err)
	require.Error(t, sessions.SignIn(context.Background(), "", SessionIdentity{IdentityID: "x"}))
}

func TestSessionStateSharedThroughRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	nodeA := NewSessionService(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", nil, time.Minute, testLogger())
	nodeB := NewSessionService(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test", nil, time.Minute, testLogger())
	nodeA.Start(ctx)
	nodeB.Start(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("test:sessions")["test:sessions"] == 2
	}, 2*time.Second, 10*time.Millisecond)

	events, unsubscribe, err := nodeB.Subscribe(ctx, "shared")
	require.NoError(t, err)
	defer unsubscribe()
	require.Nil(t, nextEvent(t, events).Identity)

	require.NoError(t, nodeA.SignIn(ctx, "shared", SessionIdentity{IdentityID: "id-9", Email: "minh@x.com"}))

	remote := nextEvent(t, events)
	require.Equal(t, SessionEventSignIn, remote.Kind)
	require.Equal(t, "id-9", remote.Identity.IdentityID)

	current, err := nodeB.Current(ctx, "shared")
	require.NoError(t, err)
	require.Equal(t, "minh@x.com", current.Email)
	require.True(t, mr.Exists("test:session:shared"))

	require.NoError(t, nodeB.SignOut(ctx, "shared"))
	require.Equal(t, SessionEventSignOut, nextEvent(t, events).Kind)

	select {
	case event := <-events:
		t.Fatalf("unexpected duplicate event %+v", event)
	case <-time.After(100 * time.Millisecond):
	}

	current, err = nodeA.Current(ctx, "shared")
	require.NoError(t, err)
	require.Nil(t, current)
}
