// Package testhelpers provides shared utilities for the relay integration tests.
//
// It starts a fully wired relay behind httptest, dials WebSocket sessions
// with an allowed origin, and reads chat and signaling frames with bounded
// waits so a missing delivery fails the test instead of hanging it.
package testhelpers

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/relay"
	"github.com/Tyrowin/gorelay/internal/server"
)

// AdminSecret is the observer secret every test relay is configured with.
const AdminSecret = "integration-admin-secret"

// ReadTimeout bounds every frame read in the helpers.
const ReadTimeout = 2 * time.Second

// Relay is a running relay server under test.
type Relay struct {
	Server *server.Server
	HTTP   *httptest.Server
	Origin string
}

// NewRelay starts a relay with test-friendly defaults. customize may adjust
// the configuration before the server is built.
func NewRelay(t *testing.T, customize func(cfg *config.Config)) *Relay {
	t.Helper()

	cfg := config.Default()
	cfg.AdminSecret = AdminSecret
	cfg.BcryptCost = bcrypt.MinCost
	cfg.RateLimit.Burst = 1000
	cfg.ShutdownTimeout = 2 * time.Second
	if customize != nil {
		customize(&cfg)
	}

	srv, err := server.New(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.SetupRoutes())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(cfg.ShutdownTimeout)
	})

	return &Relay{Server: srv, HTTP: ts, Origin: "http://localhost:8080"}
}

// WSURL returns the ws:// URL of path on the relay.
func (r *Relay) WSURL(path string) string {
	return "ws" + strings.TrimPrefix(r.HTTP.URL, "http") + path
}

// Dial opens a WebSocket to path with the relay's allowed origin.
func (r *Relay) Dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, err := DialWithOrigin(r.WSURL(path), r.Origin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// DialWithOrigin opens a WebSocket with the given Origin header. An empty
// origin sends none.
func DialWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MakeRequest executes an HTTP request with a short timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// Emit writes a chat frame.
func Emit(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := relay.EncodeFrame(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// ReadFrame reads the next chat frame.
func ReadFrame(t *testing.T, conn *websocket.Conn) relay.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	frame, err := relay.DecodeFrame(raw)
	require.NoError(t, err)
	return frame
}

// Expect reads the next chat frame, requires it to be event, and decodes its
// payload into a generic map.
func Expect(t *testing.T, conn *websocket.Conn, event string) map[string]any {
	t.Helper()
	frame := ReadFrame(t, conn)
	require.Equal(t, event, frame.Event, "payload: %s", frame.Data)

	var data map[string]any
	require.NoError(t, json.Unmarshal(frame.Data, &data))
	return data
}

// Register creates an identity and returns its discovery code.
func Register(t *testing.T, conn *websocket.Conn, username, password string) string {
	t.Helper()
	Emit(t, conn, relay.EventRegister, map[string]string{"username": username, "password": password})
	res := Expect(t, conn, relay.EventRegisterResult)
	require.Equal(t, true, res["ok"], "register %s: %v", username, res)
	return res["friendCode"].(string)
}

// Login claims username for conn.
func Login(t *testing.T, conn *websocket.Conn, username, password string) {
	t.Helper()
	Emit(t, conn, relay.EventLogin, map[string]string{"username": username, "password": password})
	res := Expect(t, conn, relay.EventLoginResult)
	require.Equal(t, true, res["ok"], "login %s: %v", username, res)
}

// ReadSignal reads the next signaling frame.
func ReadSignal(t *testing.T, conn *websocket.Conn) relay.SignalOut {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(ReadTimeout)))
	var out relay.SignalOut
	require.NoError(t, conn.ReadJSON(&out))
	return out
}

// ExpectNoMessage requires that nothing arrives on conn within timeout.
func ExpectNoMessage(t *testing.T, conn *websocket.Conn, timeout time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, raw, err := conn.ReadMessage()
	if err == nil {
		t.Fatalf("Expected no message, but received %s", raw)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return
	}
	t.Fatalf("Unexpected error while waiting for absence of message: %v", err)
}

// Eventually polls cond until it holds or the deadline passes.
func Eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, ReadTimeout, 10*time.Millisecond, msg)
}

// CloseWebSocket sends a normal close frame and closes conn.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
