package mail

import (
	"context"
	"encoding/json"
	"net"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestVerificationMessageSanitizesName(t *testing.T) {
	msg, err := VerificationMessage("GEMA Roster", "ana@school.id", "<script>alert(1)</script>Ana", "AB12CD")
	require.NoError(t, err)

	require.Equal(t, "Ana", msg.To.Name)
	require.Equal(t, "ana@school.id", msg.To.Address)
	require.Contains(t, msg.HTML, "AB12CD")
	require.Contains(t, msg.Text, "AB12CD")
	require.NotContains(t, msg.HTML, "<script>")
}

func TestVerificationMessageFallsBackOnEmptyName(t *testing.T) {
	msg, err := VerificationMessage("GEMA Roster", "ana@school.id", "<b></b>", "AB12CD")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(msg.Text, "Hello student"))
}

func TestLogSenderRecordsMessages(t *testing.T) {
	sender := NewLogSender(zerolog.Nop())
	msg, err := VerificationMessage("GEMA Roster", "ana@school.id", "Ana", "AB12CD")
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), msg))
	require.Len(t, sender.Sent(), 1)
	require.Equal(t, "log", sender.Provider())
}

func startFakeSendGrid(t *testing.T, status int, captured chan<- map[string]interface{}) string {
	t.Helper()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Post(sendgridEndpoint, func(c *fiber.Ctx) error {
		var body map[string]interface{}
		if err := json.Unmarshal(c.Body(), &body); err == nil {
			captured <- body
		}
		return c.SendStatus(status)
	})

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

func TestSendGridSenderPostsMessage(t *testing.T) {
	captured := make(chan map[string]interface{}, 1)
	host := startFakeSendGrid(t, fiber.StatusAccepted, captured)

	sender, err := NewSendGridSender(SendGridConfig{APIKey: "key", FromEmail: "noreply@school.id", FromName: "Roster", AppName: "GEMA", Host: host}, zerolog.Nop())
	require.NoError(t, err)

	msg, err := VerificationMessage("GEMA Roster", "ana@school.id", "Ana", "AB12CD")
	require.NoError(t, err)
	require.NoError(t, sender.Send(context.Background(), msg))

	body := <-captured
	personalizations, ok := body["personalizations"].([]interface{})
	require.True(t, ok)
	require.Len(t, personalizations, 1)
	first := personalizations[0].(map[string]interface{})
	require.Equal(t, "[GEMA] Your verification code", first["subject"])
}

func TestSendGridSenderFailsOnRejection(t *testing.T) {
	captured := make(chan map[string]interface{}, 1)
	host := startFakeSendGrid(t, fiber.StatusUnauthorized, captured)

	sender, err := NewSendGridSender(SendGridConfig{APIKey: "bad", FromEmail: "noreply@school.id", Host: host}, zerolog.Nop())
	require.NoError(t, err)

	msg, err := VerificationMessage("GEMA Roster", "ana@school.id", "Ana", "AB12CD")
	require.NoError(t, err)
	require.Error(t, sender.Send(context.Background(), msg))
}

func TestNewSendGridSenderRequiresKey(t *testing.T) {
	_, err := NewSendGridSender(SendGridConfig{FromEmail: "noreply@school.id"}, zerolog.Nop())
	require.Error(t, err)
}

func TestNewSenderSelectsProvider(t *testing.T) {
	sender, err := NewSender("", SendGridConfig{}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "log", sender.Provider())

	sender, err = NewSender("SendGrid", SendGridConfig{APIKey: "key", FromEmail: "no-reply@gema.local"}, zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, "sendgrid", sender.Provider())

	_, err = NewSender("smtp", SendGridConfig{}, zerolog.Nop())
	require.Error(t, err)
}
