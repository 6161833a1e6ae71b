package issuer

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func startRelay(t *testing.T, handler fiber.Handler) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post(sendPath, handler)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = app.Listener(listener)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
	})

	return "http://" + listener.Addr().String()
}

func TestIssueReturnsCode(t *testing.T) {
	var received request
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		require.NoError(t, c.BodyParser(&received))
		return c.JSON(fiber.Map{"success": true, "verificationCode": "AB12CD", "firebaseUid": "uid-1"})
	})

	client, err := New(baseURL, time.Second)
	require.NoError(t, err)

	result, err := client.Issue(context.Background(), "ana@school.id", "Ana")
	require.NoError(t, err)
	require.Equal(t, "AB12CD", result.Code)
	require.Equal(t, "uid-1", result.IdentityID)
	require.Equal(t, "ana@school.id", received.StudentEmail)
	require.Equal(t, "Ana", received.StudentName)
}

func TestIssueAcceptsNullIdentity(t *testing.T) {
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true, "verificationCode": "ZZ99ZZ", "firebaseUid": nil})
	})

	client, err := New(baseURL, time.Second)
	require.NoError(t, err)

	result, err := client.Issue(context.Background(), "ana@school.id", "Ana")
	require.NoError(t, err)
	require.Empty(t, result.IdentityID)
}

func TestIssueRejectedBySuccessFlag(t *testing.T) {
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": false, "message": "smtp down"})
	})

	client, err := New(baseURL, time.Second)
	require.NoError(t, err)

	_, err = client.Issue(context.Background(), "ana@school.id", "Ana")
	require.ErrorIs(t, err, ErrRejected)
}

func TestIssueRejectedByStatus(t *testing.T) {
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusInternalServerError).SendString("boom")
	})

	client, err := New(baseURL, time.Second)
	require.NoError(t, err)

	_, err = client.Issue(context.Background(), "ana@school.id", "Ana")
	require.ErrorIs(t, err, ErrRejected)
}

func TestIssueRejectsContractViolation(t *testing.T) {
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"success": true})
	})

	client, err := New(baseURL, time.Second)
	require.NoError(t, err)

	_, err = client.Issue(context.Background(), "ana@school.id", "Ana")
	require.ErrorIs(t, err, ErrInvalidResponse)
}

func TestIssueUnavailable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	client, err := New("http://"+addr, 500*time.Millisecond)
	require.NoError(t, err)

	_, err = client.Issue(context.Background(), "ana@school.id", "Ana")
	require.True(t, errors.Is(err, ErrUnavailable))
}

func TestIssueHonoursCancelledContext(t *testing.T) {
	client, err := New("http://127.0.0.1:1", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = client.Issue(ctx, "ana@school.id", "Ana")
	require.ErrorIs(t, err, context.Canceled)
}

func TestIssueReturnsWhenContextCancelledMidCall(t *testing.T) {
	release := make(chan struct{})
	baseURL := startRelay(t, func(c *fiber.Ctx) error {
		<-release
		return c.JSON(fiber.Map{"success": true, "message": "sent", "verificationCode": "AB12CD"})
	})
	// Runs before the relay shuts down, which waits for the blocked handler.
	t.Cleanup(func() { close(release) })

	client, err := New(baseURL, 5*time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	started := time.Now()
	_, err = client.Issue(ctx, "ana@school.id", "Ana")
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(started), 2*time.Second)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New("  ", time.Second)
	require.Error(t, err)
}
