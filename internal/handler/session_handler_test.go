package handler_test

import (
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type wsMessage struct {
	Type        string `json:"type"`
	SessionID   string `json:"session_id"`
	SignedIn    bool   `json:"signed_in"`
	Destination string `json:"destination"`
	Reason      string `json:"reason"`
}

func serveFixture(t *testing.T, f *apiFixture) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		_ = f.app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = f.app.ShutdownWithTimeout(2 * time.Second)
	})
	return ln.Addr().String()
}

func readMessage(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

// readNavigation skips session events until a navigation arrives.
func readNavigation(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	for {
		msg := readMessage(t, conn)
		if msg.Type == "navigate" {
			return msg
		}
	}
}

func TestSessionHandler_StreamsSessionChangesAndNavigations(t *testing.T) {
	f := newAPIFixture(t)
	f.staffToken(t)
	addr := serveFixture(t, f)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/auth/session/ws?session_id=browser-1", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	defer conn.Close()

	first := readMessage(t, conn)
	require.Equal(t, "current", first.Type)
	require.Equal(t, "browser-1", first.SessionID)
	require.False(t, first.SignedIn)
	require.Equal(t, "/login", readNavigation(t, conn).Destination)

	status, _ := f.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "teacher@school.test", "password": "secret123", "session_id": "browser-1",
	})
	require.Equal(t, http.StatusOK, status)

	signIn := readMessage(t, conn)
	require.Equal(t, "sign_in", signIn.Type)
	require.True(t, signIn.SignedIn)
	require.Equal(t, "/dashboard", readNavigation(t, conn).Destination)

	status, _ = f.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"session_id": "browser-1"})
	require.Equal(t, http.StatusOK, status)

	signOut := readMessage(t, conn)
	require.Equal(t, "sign_out", signOut.Type)
	require.Equal(t, "/login", readNavigation(t, conn).Destination)
}

func TestSessionHandler_RequiresSessionID(t *testing.T) {
	f := newAPIFixture(t)
	addr := serveFixture(t, f)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/auth/session/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err = conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)
}

func TestSessionHandler_RejectsPlainHTTP(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.do(t, http.MethodGet, "/api/v1/auth/session/ws?session_id=x", "", nil)
	require.Equal(t, http.StatusUpgradeRequired, status)
}
