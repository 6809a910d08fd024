package integration

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/gorelay/internal/config"
	"github.com/Tyrowin/gorelay/internal/server"
	"github.com/Tyrowin/gorelay/test/testhelpers"
)

// TestGracefulShutdownWithClients runs the real HTTP server on a loopback
// port, connects clients, and verifies both shutdown phases release them.
func TestGracefulShutdownWithClients(t *testing.T) {
	cfg := config.Default()
	cfg.AdminSecret = testhelpers.AdminSecret
	cfg.BcryptCost = bcrypt.MinCost

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().String()
	require.NoError(t, listener.Close())
	cfg.Port = addr

	log := zaptest.NewLogger(t)
	srv, err := server.New(cfg, log)
	require.NoError(t, err)
	httpServer := server.CreateServer(cfg.Port, srv.SetupRoutes())

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.StartServer(httpServer, log) }()

	url := "ws://" + addr + "/ws"
	var conn *websocket.Conn
	require.Eventually(t, func() bool {
		conn, err = testhelpers.DialWithOrigin(url, "http://localhost:8080")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond, "server should accept connections")
	clients := []*websocket.Conn{conn}
	for i := 0; i < 4; i++ {
		c, err := testhelpers.DialWithOrigin(url, "http://localhost:8080")
		require.NoError(t, err)
		clients = append(clients, c)
	}
	testhelpers.Eventually(t, func() bool { return srv.Hub().ClientCount() == len(clients) },
		"clients should register")

	require.NoError(t, server.ShutdownServer(httpServer, 2*time.Second, log))
	require.NoError(t, <-serverDone)
	require.NoError(t, srv.Hub().Shutdown(2*time.Second))
	assert.Equal(t, 0, srv.Hub().ClientCount())

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *websocket.Conn) {
			defer wg.Done()
			_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
			_, _, err := c.ReadMessage()
			assert.Error(t, err, "client should observe the closed connection")
			_ = c.Close()
		}(c)
	}
	wg.Wait()
}

func TestHubRejectsSessionsAfterShutdown(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)

	require.NoError(t, r.Server.Hub().Shutdown(time.Second))

	conn, err := testhelpers.DialWithOrigin(r.WSURL("/ws"), r.Origin)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "unexpected error: %v", err)
	assert.Equal(t, 0, r.Server.Hub().ClientCount())
}

func TestShutdownWithNoClients(t *testing.T) {
	r := testhelpers.NewRelay(t, nil)
	assert.NoError(t, r.Server.Hub().Shutdown(time.Second))
	assert.NoError(t, r.Server.Hub().Shutdown(time.Second))
}
