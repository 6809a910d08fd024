package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/gorelay/internal/config"
)

// Hub tracks every live Client, starts its pumps, and tears it out of the
// relay when it closes.
type Hub struct {
	clients map[*Client]struct{}
	mutex   sync.RWMutex
	wg      sync.WaitGroup
	closing bool

	cfg     config.Config
	log     *zap.Logger
	metrics *Metrics
}

// NewHub creates a Hub. A nil logger discards output; nil metrics record
// nothing.
func NewHub(cfg config.Config, log *zap.Logger, metrics *Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		cfg:     config.Sanitize(cfg),
		log:     log,
		metrics: metrics,
	}
}

// Register adds client and launches its read and write pumps.
func (h *Hub) Register(client *Client) error {
	h.mutex.Lock()
	if h.closing {
		h.mutex.Unlock()
		return ErrShuttingDown
	}
	h.clients[client] = struct{}{}
	clientCount := len(h.clients)
	h.wg.Add(2)
	h.mutex.Unlock()

	h.metrics.incSession()
	client.log.Info("Client registered", zap.Int("clients", clientCount))

	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
	return nil
}

// Unregister removes client, stops its write pump, and purges every relay
// entry that points at it before returning. Repeated calls are no-ops.
func (h *Hub) Unregister(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	client.closeSend()
	client.handler.Disconnect(client)

	h.metrics.decSession()
	client.log.Info("Client unregistered", zap.Int("clients", clientCount))
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// getClientSnapshot returns a thread-safe snapshot of all current clients
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every client connection; their read pumps then
// unregister them.
func (h *Hub) shutdownClients() {
	clients := h.getClientSnapshot()
	for _, client := range clients {
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			client.log.Debug("Error closing client connection", zap.Error(err))
		}
	}
	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops accepting clients, closes the live ones, and waits for
// their pumps to finish or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.mutex.Lock()
	h.closing = true
	h.mutex.Unlock()

	h.shutdownClients()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
